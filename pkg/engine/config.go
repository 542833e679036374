package engine

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/germanamz/relay/pkg/agent"
	"github.com/germanamz/relay/pkg/logging"
	"github.com/germanamz/relay/pkg/rag"
	"github.com/germanamz/relay/pkg/tools/catalog"
	"github.com/germanamz/relay/pkg/workflow"
	"gopkg.in/yaml.v3"
)

// Config is the top-level engine configuration.
type Config struct {
	Log        logging.Config    `yaml:"log"`
	Providers  []ProviderConfig  `yaml:"providers"`
	MCPServers []MCPConfig       `yaml:"mcp_servers"`
	Retrievers []RetrieverConfig `yaml:"retrievers"`
	Agents     []AgentConfig     `yaml:"agents"`
	RootAgent  string            `yaml:"root_agent"`
	// InitialState seeds every fresh store, e.g. {"num_fn_calls": 0}.
	InitialState map[string]any `yaml:"initial_state"`
	// StatePrompt wraps user messages; see workflow.Options.StatePrompt.
	StatePrompt string `yaml:"state_prompt"`
	// StateDB is a sqlite file sessions persist their store to.
	StateDB string `yaml:"state_db"`
}

// RetryConfig controls per-provider retries and throttling.
type RetryConfig struct {
	RPM        int    `yaml:"rpm"`         // Requests per minute (0 = no limit).
	MaxRetries int    `yaml:"max_retries"` // Retries after the first attempt (default 3).
	BaseDelay  string `yaml:"base_delay"`  // Initial backoff delay as a duration string (e.g. "1s", "500ms").
}

// ProviderConfig describes an LLM provider instance.
type ProviderConfig struct {
	Name        string      `yaml:"name"`
	Kind        string      `yaml:"kind"` // openai, anthropic, huggingface, scripted
	BaseURL     string      `yaml:"base_url"`
	APIKey      string      `yaml:"api_key"` //nolint:gosec // configuration field, not a hardcoded secret
	Model       string      `yaml:"model"`
	Temperature *float64    `yaml:"temperature"`
	MaxTokens   int         `yaml:"max_tokens"`
	Timeout     string      `yaml:"timeout"` // Per-call timeout as a duration string.
	Retry       RetryConfig `yaml:"retry"`
	// Replies script a "scripted" provider.
	Replies []ReplyConfig `yaml:"replies"`
	Loop    bool          `yaml:"loop"`
}

// ReplyConfig is one scripted model turn: plain text, a tool call or a
// failure.
type ReplyConfig struct {
	Text  string         `yaml:"text"`
	Tool  string         `yaml:"tool"`
	Args  map[string]any `yaml:"args"`
	Error string         `yaml:"error"`
}

// MCPConfig describes an MCP server to connect to.
type MCPConfig struct {
	Name    string            `yaml:"name"`
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
}

// EmbedderConfig selects the embedding function of a retriever.
type EmbedderConfig struct {
	Kind    string `yaml:"kind"` // hash (default) or openai
	Dims    int    `yaml:"dims"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"` //nolint:gosec // configuration field, not a hardcoded secret
	Model   string `yaml:"model"`
}

// RetrieverConfig describes a document collection exposed as a tool box
// holding one retrieval tool named after the retriever.
type RetrieverConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	// Dir is ingested recursively. Documents are added inline.
	Dir       string         `yaml:"dir"`
	Documents []string       `yaml:"documents"`
	Embedder  EmbedderConfig `yaml:"embedder"`
	// Persist keeps the collection on disk in this directory.
	Persist   string `yaml:"persist"`
	ChunkSize int    `yaml:"chunk_size"`
	Overlap   int    `yaml:"overlap"`
	TopK      int    `yaml:"top_k"`
	Mode      string `yaml:"mode"` // retrieve (default) or synthesize
	// Provider answers in synthesize mode.
	Provider string `yaml:"provider"`
}

// ValidatorConfig describes one final-answer check.
type ValidatorConfig struct {
	Kind     string `yaml:"kind"` // non_empty or judge
	Criteria string `yaml:"criteria"`
	Provider string `yaml:"provider"` // judge model; defaults to the agent's
}

// AgentConfig describes an agent of the workflow.
type AgentConfig struct {
	Name         string `yaml:"name"`
	Description  string `yaml:"description"`
	Instructions string `yaml:"instructions"`
	// Kind is "tool" (default) or "code".
	Kind      string   `yaml:"kind"`
	Provider  string   `yaml:"provider"`
	Toolboxes []string `yaml:"toolboxes"`
	// Tools restricts the agent to these tool names; empty keeps all.
	Tools            []string          `yaml:"tools"`
	Managed          []string          `yaml:"managed"`
	MaxSteps         int               `yaml:"max_steps"`
	PlanningInterval int               `yaml:"planning_interval"`
	Validators       []ValidatorConfig `yaml:"validators"`
	ValidationPolicy string            `yaml:"validation_policy"`
	LoopDetect       int               `yaml:"loop_detect"` // Identical calls before nudging (0 = off).
	Timeout          string            `yaml:"timeout"`     // Whole-run bound as a duration string.
}

// Agent kinds.
const (
	KindTool = "tool"
	KindCode = "code"
)

// LoadConfig reads a YAML file and returns a Config.
// Environment variables referenced as ${VAR} or $VAR in the YAML are expanded
// before parsing. This allows API keys and other secrets to be kept in
// environment variables (e.g. loaded from a .env file) rather than committed
// in the config.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-provided configuration, not user input
	if err != nil {
		return Config{}, fmt.Errorf("engine: load config: %w", err)
	}

	return ParseConfig(data)
}

// ParseConfig expands environment variables in data and decodes it.
func ParseConfig(data []byte) (Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("engine: parse config: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent. Tool box
// names resolve against cat, the MCP servers and the retrievers.
func (c Config) Validate(cat *catalog.Catalog) error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("engine: config: at least one provider is required")
	}

	providerNames := make(map[string]struct{}, len(c.Providers))
	for _, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("engine: config: provider name is required")
		}
		if p.Kind == "" {
			return fmt.Errorf("engine: config: provider %q: kind is required", p.Name)
		}
		if _, dup := providerNames[p.Name]; dup {
			return fmt.Errorf("engine: config: duplicate provider name %q", p.Name)
		}
		if err := checkDuration(p.Timeout); err != nil {
			return fmt.Errorf("engine: config: provider %q: timeout: %w", p.Name, err)
		}
		if err := checkDuration(p.Retry.BaseDelay); err != nil {
			return fmt.Errorf("engine: config: provider %q: base_delay: %w", p.Name, err)
		}
		providerNames[p.Name] = struct{}{}
	}

	boxNames := make(map[string]struct{})
	for _, n := range cat.Names() {
		boxNames[n] = struct{}{}
	}

	for _, m := range c.MCPServers {
		if m.Name == "" {
			return fmt.Errorf("engine: config: mcp server name is required")
		}
		if m.Command == "" {
			return fmt.Errorf("engine: config: mcp server %q: command is required", m.Name)
		}
		if _, dup := boxNames[m.Name]; dup {
			return fmt.Errorf("engine: config: duplicate toolbox name %q", m.Name)
		}
		boxNames[m.Name] = struct{}{}
	}

	for _, r := range c.Retrievers {
		if r.Name == "" {
			return fmt.Errorf("engine: config: retriever name is required")
		}
		if _, dup := boxNames[r.Name]; dup {
			return fmt.Errorf("engine: config: duplicate toolbox name %q", r.Name)
		}
		if r.Dir == "" && len(r.Documents) == 0 && r.Persist == "" {
			return fmt.Errorf("engine: config: retriever %q: dir, documents or persist is required", r.Name)
		}
		switch r.Embedder.Kind {
		case "", "hash", "openai":
		default:
			return fmt.Errorf("engine: config: retriever %q: unknown embedder %q", r.Name, r.Embedder.Kind)
		}
		mode, err := rag.ParseMode(r.Mode)
		if err != nil {
			return fmt.Errorf("engine: config: retriever %q: %w", r.Name, err)
		}
		if mode == rag.ModeSynthesize {
			if _, ok := providerNames[r.Provider]; !ok {
				return fmt.Errorf("engine: config: retriever %q: synthesize needs a known provider, got %q", r.Name, r.Provider)
			}
		}
		boxNames[r.Name] = struct{}{}
	}

	if len(c.Agents) == 0 {
		return fmt.Errorf("engine: config: at least one agent is required")
	}

	agentNames := make(map[string]struct{}, len(c.Agents))
	for _, a := range c.Agents {
		if a.Name == "" {
			return fmt.Errorf("engine: config: agent name is required")
		}
		if _, dup := agentNames[a.Name]; dup {
			return fmt.Errorf("engine: config: duplicate agent name %q", a.Name)
		}
		agentNames[a.Name] = struct{}{}
	}

	managed := make(map[string][]string)
	for _, a := range c.Agents {
		if err := c.validateAgent(a, providerNames, boxNames, agentNames); err != nil {
			return err
		}
		if len(a.Managed) > 0 {
			managed[a.Name] = a.Managed
		}
	}

	if cycle := workflow.FindCycle(managed); cycle != nil {
		return fmt.Errorf("engine: config: delegation cycle %s", strings.Join(cycle, " -> "))
	}

	if c.RootAgent != "" {
		if _, ok := agentNames[c.RootAgent]; !ok {
			return fmt.Errorf("engine: config: root_agent %q not found in agents", c.RootAgent)
		}
	}

	return nil
}

func (c Config) validateAgent(a AgentConfig, providers, boxes, agents map[string]struct{}) error {
	if _, ok := providers[a.Provider]; a.Provider != "" && !ok {
		return fmt.Errorf("engine: config: agent %q: unknown provider %q", a.Name, a.Provider)
	}

	switch a.Kind {
	case "", KindTool, KindCode:
	default:
		return fmt.Errorf("engine: config: agent %q: unknown kind %q", a.Name, a.Kind)
	}

	for _, tb := range a.Toolboxes {
		if _, ok := boxes[tb]; !ok {
			return fmt.Errorf("engine: config: agent %q: unknown toolbox %q", a.Name, tb)
		}
	}

	for _, m := range a.Managed {
		if _, ok := agents[m]; !ok {
			return fmt.Errorf("engine: config: agent %q: manages unknown agent %q", a.Name, m)
		}
		if m == a.Name {
			return fmt.Errorf("engine: config: agent %q: manages itself", a.Name)
		}
	}

	if _, err := agent.ParseValidationPolicy(a.ValidationPolicy); err != nil {
		return fmt.Errorf("engine: config: agent %q: %w", a.Name, err)
	}

	for i, v := range a.Validators {
		switch v.Kind {
		case "non_empty":
		case "judge":
			if strings.TrimSpace(v.Criteria) == "" {
				return fmt.Errorf("engine: config: agent %q: validator[%d]: judge needs criteria", a.Name, i)
			}
			if _, ok := providers[v.Provider]; v.Provider != "" && !ok {
				return fmt.Errorf("engine: config: agent %q: validator[%d]: unknown provider %q", a.Name, i, v.Provider)
			}
		default:
			return fmt.Errorf("engine: config: agent %q: validator[%d]: unknown kind %q", a.Name, i, v.Kind)
		}
	}

	if err := checkDuration(a.Timeout); err != nil {
		return fmt.Errorf("engine: config: agent %q: timeout: %w", a.Name, err)
	}

	return nil
}

// Root returns the configured root agent, or the first agent.
func (c Config) Root() string {
	if c.RootAgent != "" || len(c.Agents) == 0 {
		return c.RootAgent
	}
	return c.Agents[0].Name
}

// ToolboxNames lists every tool box an agent may reference.
func (c Config) ToolboxNames(cat *catalog.Catalog) []string {
	names := cat.Names()
	for _, m := range c.MCPServers {
		names = append(names, m.Name)
	}
	for _, r := range c.Retrievers {
		names = append(names, r.Name)
	}
	sort.Strings(names)
	return names
}

func checkDuration(s string) error {
	if s == "" {
		return nil
	}
	_, err := time.ParseDuration(s)
	return err
}

func parseDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
