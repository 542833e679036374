package engine

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/germanamz/relay/pkg/modeladapter"
	"github.com/germanamz/relay/pkg/providers/anthropic"
	"github.com/germanamz/relay/pkg/providers/huggingface"
	"github.com/germanamz/relay/pkg/providers/openai"
	"github.com/germanamz/relay/pkg/providers/scripted"
)

// ProviderFactory creates a Completer from a ProviderConfig.
type ProviderFactory func(cfg ProviderConfig) (modeladapter.Completer, error)

var (
	factoryMu   sync.RWMutex
	factories   = map[string]ProviderFactory{}
	defaultsReg sync.Once
)

func ensureDefaults() {
	defaultsReg.Do(func() {
		factories["anthropic"] = newAnthropic
		factories["openai"] = newOpenAI
		factories["huggingface"] = newHuggingFace
		factories["scripted"] = newScripted
	})
}

// RegisterProvider registers a custom provider factory under the given kind.
// It can be called before New to extend the engine with additional providers.
func RegisterProvider(kind string, factory ProviderFactory) {
	ensureDefaults()

	factoryMu.Lock()
	defer factoryMu.Unlock()

	factories[kind] = factory
}

// getFactory returns the factory for the given kind.
func getFactory(kind string) (ProviderFactory, bool) {
	ensureDefaults()

	factoryMu.RLock()
	defer factoryMu.RUnlock()

	f, ok := factories[kind]
	return f, ok
}

func newAnthropic(cfg ProviderConfig) (modeladapter.Completer, error) {
	return anthropic.New(anthropic.Options{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}), nil
}

func newOpenAI(cfg ProviderConfig) (modeladapter.Completer, error) {
	return openai.New(openai.Options{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}), nil
}

func newHuggingFace(cfg ProviderConfig) (modeladapter.Completer, error) {
	token := cfg.APIKey
	if token == "" {
		token = os.Getenv(huggingface.TokenEnv)
	}

	a := huggingface.New(cfg.BaseURL, token, cfg.Model)
	if cfg.Temperature != nil {
		a.Temperature = cfg.Temperature
	}
	if cfg.MaxTokens > 0 {
		a.MaxTokens = cfg.MaxTokens
	}

	return a, nil
}

func newScripted(cfg ProviderConfig) (modeladapter.Completer, error) {
	if len(cfg.Replies) == 0 {
		return nil, errors.New("scripted provider needs replies")
	}

	replies := make([]scripted.Reply, 0, len(cfg.Replies))
	for i, r := range cfg.Replies {
		switch {
		case r.Tool != "":
			args := r.Args
			if args == nil {
				args = map[string]any{}
			}
			replies = append(replies, scripted.Call(r.Tool, args))
		case r.Error != "":
			replies = append(replies, scripted.Fail(errors.New(r.Error)))
		case r.Text != "":
			replies = append(replies, scripted.Text(r.Text))
		default:
			return nil, fmt.Errorf("reply[%d]: one of text, tool or error is required", i)
		}
	}

	s := scripted.New(replies...)
	if cfg.Loop {
		s.Loop()
	}
	return s, nil
}

// buildCompleter creates a Completer from a ProviderConfig using the registered
// factory for its Kind. A per-call timeout wraps the adapter first; retries and
// throttling wrap the result, so every attempt gets its own deadline.
func buildCompleter(cfg ProviderConfig) (modeladapter.Completer, error) {
	factory, ok := getFactory(cfg.Kind)
	if !ok {
		return nil, fmt.Errorf("engine: unknown provider kind %q", cfg.Kind)
	}

	c, err := factory(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("engine: provider %q: invalid timeout %q: %w", cfg.Name, cfg.Timeout, err)
		}
		c = modeladapter.WithTimeout(c, d)
	}

	rc := cfg.Retry
	if rc.RPM > 0 || rc.MaxRetries > 0 || rc.BaseDelay != "" {
		var baseDelay time.Duration
		if rc.BaseDelay != "" {
			var parseErr error
			baseDelay, parseErr = time.ParseDuration(rc.BaseDelay)
			if parseErr != nil {
				return nil, fmt.Errorf("engine: provider %q: invalid base_delay %q: %w", cfg.Name, rc.BaseDelay, parseErr)
			}
		}

		c = modeladapter.NewRetryCompleter(c, modeladapter.RetryOpts{
			RPM:        rc.RPM,
			MaxRetries: rc.MaxRetries,
			BaseDelay:  baseDelay,
		})
	}

	return c, nil
}
