package rag

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/clipperhouse/uax29/words"
	"github.com/philippgille/chromem-go"
)

// Embedder turns text into a vector. It is chromem's embedding function
// type, so any chromem provider can be used directly.
type Embedder = chromem.EmbeddingFunc

// OpenAIEmbedder embeds through an OpenAI-compatible /embeddings endpoint
// (OpenAI, Ollama, LocalAI, the Hugging Face router and similar). An empty
// baseURL means api.openai.com.
func OpenAIEmbedder(baseURL, apiKey, model string) Embedder {
	if baseURL == "" {
		return chromem.NewEmbeddingFuncOpenAI(apiKey, chromem.EmbeddingModelOpenAI(model))
	}
	return chromem.NewEmbeddingFuncOpenAICompat(baseURL, apiKey, model, nil)
}

// DefaultHashDims is the vector size of HashEmbedder when none is given.
const DefaultHashDims = 256

// HashEmbedder returns a deterministic bag-of-words embedder: every
// lower-cased word is hashed into one of dims buckets and the vector is
// normalized. It needs no network and suits tests and offline demos.
func HashEmbedder(dims int) Embedder {
	if dims <= 0 {
		dims = DefaultHashDims
	}

	return func(_ context.Context, text string) ([]float32, error) {
		v := make([]float32, dims)

		sc := words.NewScanner(strings.NewReader(text))
		for sc.Scan() {
			w := sc.Text()
			if !strings.ContainsFunc(w, isWordRune) {
				continue
			}
			h := fnv.New32a()
			_, _ = h.Write([]byte(strings.ToLower(w)))
			v[h.Sum32()%uint32(dims)]++
		}
		if err := sc.Err(); err != nil {
			return nil, err
		}

		return normalize(v), nil
	}
}

func isWordRune(r rune) bool { return unicode.IsLetter(r) || unicode.IsNumber(r) }

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		v[0] = 1
		return v
	}

	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
	return v
}
