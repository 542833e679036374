package rag

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
)

// Document is the text of one source file or inline entry.
type Document struct {
	Source  string
	Content string
}

// LoadDir reads every supported file under dir, recursively, sorted by path.
// Plain text and markdown are read as is, HTML is converted to markdown and
// PDF text is extracted page by page. Other files and hidden entries are
// skipped.
func LoadDir(dir string) ([]Document, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && path != dir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("rag: walk %s: %w", dir, err)
	}
	sort.Strings(paths)

	docs := make([]Document, 0, len(paths))
	for _, p := range paths {
		doc, ok, err := LoadFile(p)
		if err != nil {
			return nil, err
		}
		if !ok || strings.TrimSpace(doc.Content) == "" {
			continue
		}
		rel, relErr := filepath.Rel(dir, p)
		if relErr == nil {
			doc.Source = filepath.ToSlash(rel)
		}
		docs = append(docs, doc)
	}

	return docs, nil
}

// LoadFile reads one file. ok is false for unsupported content types.
func LoadFile(path string) (Document, bool, error) {
	mime, err := mimetype.DetectFile(path)
	if err != nil {
		return Document{}, false, fmt.Errorf("rag: detect %s: %w", path, err)
	}

	var text string
	switch {
	case mime.Is("application/pdf"):
		text, err = readPDF(path)
	case isA(mime, "text/html"):
		text, err = readHTML(path)
	case isA(mime, "text/plain"):
		var b []byte
		b, err = os.ReadFile(path) //nolint:gosec // path comes from the configured docs dir
		text = string(b)
	default:
		return Document{}, false, nil
	}
	if err != nil {
		return Document{}, false, fmt.Errorf("rag: read %s: %w", path, err)
	}

	return Document{Source: path, Content: text}, true, nil
}

// isA reports whether mime or one of its ancestors is want.
func isA(mime *mimetype.MIME, want string) bool {
	for m := mime; m != nil; m = m.Parent() {
		if m.Is(want) {
			return true
		}
	}
	return false
}

func readHTML(path string) (string, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the configured docs dir
	if err != nil {
		return "", err
	}
	defer f.Close()

	md, err := htmltomarkdown.ConvertReader(f)
	if err != nil {
		return "", err
	}
	return string(md), nil
}

func readPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var buf bytes.Buffer
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		for _, row := range rows {
			for _, word := range row.Content {
				buf.WriteString(word.S)
			}
			buf.WriteByte('\n')
		}
		buf.WriteByte('\n')
	}

	return buf.String(), nil
}
