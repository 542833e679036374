package usage_test

import (
	"sync"
	"testing"

	"github.com/germanamz/relay/pkg/modeladapter/usage"
	"github.com/stretchr/testify/assert"
)

func TestTokenCount(t *testing.T) {
	tc := usage.TokenCount{InputTokens: 100, OutputTokens: 50}

	assert.Equal(t, 150, tc.Total())
	assert.Equal(t, "100 in / 50 out", tc.String())
}

func TestTracker(t *testing.T) {
	var tr usage.Tracker

	_, ok := tr.Last()
	assert.False(t, ok)

	tr.Add(usage.TokenCount{InputTokens: 10, OutputTokens: 5})
	tr.Add(usage.TokenCount{InputTokens: 20, OutputTokens: 10})

	last, ok := tr.Last()
	assert.True(t, ok)
	assert.Equal(t, usage.TokenCount{InputTokens: 20, OutputTokens: 10}, last)
	assert.Equal(t, usage.TokenCount{InputTokens: 30, OutputTokens: 15}, tr.Total())
	assert.Equal(t, 2, tr.Count())

	tr.Reset()
	assert.Equal(t, 0, tr.Count())
	assert.Equal(t, usage.TokenCount{}, tr.Total())
}

func TestTracker_Concurrent(t *testing.T) {
	var tr usage.Tracker
	var wg sync.WaitGroup

	for range 100 {
		wg.Go(func() {
			tr.Add(usage.TokenCount{InputTokens: 1, OutputTokens: 1})
		})
	}
	wg.Wait()

	assert.Equal(t, 100, tr.Count())
	assert.Equal(t, 200, tr.Total().Total())
}
