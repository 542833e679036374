package rag

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/clipperhouse/uax29/sentences"
	"github.com/google/uuid"
)

const (
	DefaultChunkSize = 500
	DefaultOverlap   = 50
)

// chunkNamespace scopes chunk ids so that re-ingesting the same content
// yields the same ids.
var chunkNamespace = uuid.MustParse("8a3c2f1e-6b0d-4c57-9e21-5f7d3a9b0c44")

// Chunk is a piece of a Document small enough to embed.
type Chunk struct {
	ID      string
	Source  string
	Index   int
	Content string
}

// Splitter cuts text into chunks of at most ChunkSize characters along
// sentence boundaries (Unicode UAX #29). Consecutive chunks share up to
// Overlap characters of trailing sentences. Sentences longer than ChunkSize
// are cut hard.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

func (s Splitter) withDefaults() (Splitter, error) {
	if s.ChunkSize <= 0 {
		s.ChunkSize = DefaultChunkSize
	}
	if s.Overlap < 0 {
		s.Overlap = 0
	}
	if s.Overlap >= s.ChunkSize {
		return s, fmt.Errorf("rag: overlap %d must be smaller than chunk size %d", s.Overlap, s.ChunkSize)
	}
	return s, nil
}

// Split returns the chunks of text. Blank text yields none.
func (s Splitter) Split(text string) ([]string, error) {
	s, err := s.withDefaults()
	if err != nil {
		return nil, err
	}

	parts, err := s.sentences(text)
	if err != nil {
		return nil, err
	}

	var (
		chunks []string
		cur    []string
		curLen int
	)
	emit := func() {
		if c := strings.TrimSpace(strings.Join(cur, "")); c != "" {
			chunks = append(chunks, c)
		}
	}

	for _, p := range parts {
		n := utf8.RuneCountInString(p)
		if curLen+n > s.ChunkSize && curLen > 0 {
			emit()
			cur, curLen = s.tail(cur)
			if curLen+n > s.ChunkSize {
				cur, curLen = nil, 0
			}
		}
		cur = append(cur, p)
		curLen += n
	}
	emit()

	return chunks, nil
}

// tail returns the trailing sentences of cur that fit in the overlap.
func (s Splitter) tail(cur []string) ([]string, int) {
	n := 0
	i := len(cur)
	for i > 0 {
		l := utf8.RuneCountInString(cur[i-1])
		if n+l > s.Overlap {
			break
		}
		n += l
		i--
	}
	return append([]string(nil), cur[i:]...), n
}

// sentences segments text, cutting any sentence longer than ChunkSize.
func (s Splitter) sentences(text string) ([]string, error) {
	sc := sentences.NewScanner(strings.NewReader(text))

	var out []string
	for sc.Scan() {
		out = append(out, hardSplit(sc.Text(), s.ChunkSize)...)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("rag: segment text: %w", err)
	}
	return out, nil
}

func hardSplit(s string, size int) []string {
	if utf8.RuneCountInString(s) <= size {
		return []string{s}
	}

	r := []rune(s)
	var out []string
	for len(r) > size {
		out = append(out, string(r[:size]))
		r = r[size:]
	}
	if len(r) > 0 {
		out = append(out, string(r))
	}
	return out
}

// SplitDocuments splits every document. Chunk ids are derived from source,
// position and content.
func (s Splitter) SplitDocuments(docs []Document) ([]Chunk, error) {
	var out []Chunk
	for _, d := range docs {
		parts, err := s.Split(d.Content)
		if err != nil {
			return nil, err
		}
		for i, p := range parts {
			out = append(out, Chunk{
				ID:      ChunkID(d.Source, i, p),
				Source:  d.Source,
				Index:   i,
				Content: p,
			})
		}
	}
	return out, nil
}

// ChunkID is the stable id of chunk i of source with the given content.
func ChunkID(source string, i int, content string) string {
	return uuid.NewSHA1(chunkNamespace, []byte(source+"\x00"+strconv.Itoa(i)+"\x00"+content)).String()
}
