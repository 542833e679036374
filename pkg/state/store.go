// Package state provides the shared context store of a workflow: a
// thread-safe key-value map that every tool invocation of a run can read and
// mutate. Read-modify-write goes through Update, which holds the write lock
// for the whole operation so concurrent increments never lose updates.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/germanamz/relay/pkg/tools/toolbox"
)

// ErrNotNumeric is returned by Increment when the stored value is not a number.
var ErrNotNumeric = errors.New("state: value is not numeric")

var _ toolbox.State = (*Store)(nil)

// Store is a thread-safe key-value store. The zero value is ready to use.
type Store struct {
	mu   sync.RWMutex
	once sync.Once
	data map[string]any
}

// New creates a store seeded with a deep copy of initial.
func New(initial map[string]any) *Store {
	s := &Store{}
	s.init()
	for k, v := range initial {
		s.data[k] = copyValue(v)
	}
	return s
}

func (s *Store) init() {
	s.once.Do(func() {
		s.data = make(map[string]any)
	})
}

// Get returns a copy of the value for key and whether it was found.
func (s *Store) Get(key string) (any, bool) {
	s.init()
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	if !ok {
		return nil, false
	}

	return copyValue(v), true
}

// Set stores a value under key.
func (s *Store) Set(key string, value any) {
	s.init()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = copyValue(value)
}

// Delete removes a key.
func (s *Store) Delete(key string) {
	s.init()
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
}

// Update applies fn to the current value of key under the write lock and
// stores what it returns. When fn fails nothing is written. fn must not call
// back into the store.
func (s *Store) Update(key string, fn func(current any, ok bool) (any, error)) error {
	s.init()
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.data[key]
	next, err := fn(copyValue(cur), ok)
	if err != nil {
		return err
	}

	s.data[key] = copyValue(next)

	return nil
}

// Increment adds delta to the integer stored under key (a missing key counts
// as 0) and returns the new value.
func (s *Store) Increment(key string, delta int) (int, error) {
	var n int
	err := s.Update(key, func(cur any, ok bool) (any, error) {
		base := 0
		if ok {
			v, err := toInt(cur)
			if err != nil {
				return nil, fmt.Errorf("%w: %s holds %T", err, key, cur)
			}
			base = v
		}
		n = base + delta
		return n, nil
	})
	return n, err
}

// Replace swaps the whole content of the store for a copy of data.
func (s *Store) Replace(data map[string]any) {
	s.init()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = make(map[string]any, len(data))
	for k, v := range data {
		s.data[k] = copyValue(v)
	}
}

// Keys returns the sorted keys of the store.
func (s *Store) Keys() []string {
	s.init()
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// Snapshot returns a deep copy of the entire store.
func (s *Store) Snapshot() map[string]any {
	s.init()
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp := make(map[string]any, len(s.data))
	for k, v := range s.data {
		cp[k] = copyValue(v)
	}

	return cp
}

// MarshalJSON encodes a snapshot of the store.
func (s *Store) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Snapshot())
}

// copyValue deep-copies the aggregate shapes JSON decoding produces
// (maps, slices, raw bytes). Other types are returned as is.
func copyValue(v any) any {
	switch x := v.(type) {
	case json.RawMessage:
		cp := make(json.RawMessage, len(x))
		copy(cp, x)
		return cp
	case []byte:
		cp := make([]byte, len(x))
		copy(cp, x)
		return cp
	case map[string]any:
		cp := make(map[string]any, len(x))
		for k, e := range x {
			cp[k] = copyValue(e)
		}
		return cp
	case []any:
		cp := make([]any, len(x))
		for i, e := range x {
			cp[i] = copyValue(e)
		}
		return cp
	default:
		return v
	}
}

func toInt(v any) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case int32:
		return int(x), nil
	case int64:
		return int(x), nil
	case float64:
		if x != math.Trunc(x) {
			return 0, ErrNotNumeric
		}
		return int(x), nil
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			return 0, ErrNotNumeric
		}
		return int(n), nil
	}
	return 0, ErrNotNumeric
}
