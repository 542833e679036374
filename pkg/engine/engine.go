package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/germanamz/relay/pkg/agent"
	"github.com/germanamz/relay/pkg/modeladapter"
	"github.com/germanamz/relay/pkg/modeladapter/usage"
	"github.com/germanamz/relay/pkg/rag"
	"github.com/germanamz/relay/pkg/state"
	"github.com/germanamz/relay/pkg/state/statedb"
	"github.com/germanamz/relay/pkg/tools/catalog"
	"github.com/germanamz/relay/pkg/tools/mcpclient"
	"github.com/germanamz/relay/pkg/tools/toolbox"
	"github.com/germanamz/relay/pkg/workflow"
	"github.com/rs/zerolog"
)

// Engine is the composition root that assembles all framework components from
// configuration and exposes them through a frontend-agnostic API.
type Engine struct {
	cfg        Config
	log        zerolog.Logger
	events     *EventBus
	catalog    *catalog.Catalog
	completers map[string]modeladapter.Completer
	toolboxes  map[string]*toolbox.ToolBox
	retrievers map[string]*retriever
	mcpClients []*mcpclient.MCPClient
	workflow   *workflow.Workflow
	db         *statedb.DB

	mu       sync.Mutex
	sessions map[string]*Session
	nextID   int
}

type retriever struct {
	cfg      RetrieverConfig
	index    *rag.Index
	splitter rag.Splitter
}

// Option customizes New.
type Option func(*Engine)

// WithLogger sets the logger of the engine and its agents.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithCatalog replaces the builtin tool box catalog.
func WithCatalog(c *catalog.Catalog) Option {
	return func(e *Engine) { e.catalog = c }
}

// New creates an Engine from the given configuration. It validates the config,
// creates provider adapters, connects MCP clients, builds retriever indexes
// and assembles the agent workflow. Every MCP client started before a failure
// is closed again.
func New(ctx context.Context, cfg Config, opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg:        cfg,
		log:        zerolog.Nop(),
		events:     NewEventBus(),
		catalog:    catalog.Default(),
		completers: make(map[string]modeladapter.Completer, len(cfg.Providers)),
		toolboxes:  make(map[string]*toolbox.ToolBox),
		retrievers: make(map[string]*retriever, len(cfg.Retrievers)),
		sessions:   make(map[string]*Session),
	}
	for _, o := range opts {
		o(e)
	}

	if err := cfg.Validate(e.catalog); err != nil {
		return nil, err
	}

	for _, pc := range cfg.Providers {
		c, err := buildCompleter(pc)
		if err != nil {
			return nil, fmt.Errorf("engine: provider %q: %w", pc.Name, err)
		}
		e.completers[pc.Name] = c
	}

	for _, name := range e.catalog.Names() {
		tb, err := e.catalog.Build(name)
		if err != nil {
			return nil, fmt.Errorf("engine: toolbox %q: %w", name, err)
		}
		e.toolboxes[name] = tb
	}

	if err := e.connectMCP(ctx); err != nil {
		_ = e.Close()
		return nil, err
	}

	for _, rc := range cfg.Retrievers {
		if err := e.addRetriever(ctx, rc); err != nil {
			_ = e.Close()
			return nil, err
		}
	}

	agents := make([]*agent.Agent, 0, len(cfg.Agents))
	managed := make(map[string][]string)
	for _, ac := range cfg.Agents {
		a, err := e.buildAgent(ac)
		if err != nil {
			_ = e.Close()
			return nil, err
		}
		agents = append(agents, a)
		if len(ac.Managed) > 0 {
			managed[ac.Name] = ac.Managed
		}
	}

	closers := make([]io.Closer, 0, len(e.mcpClients))
	for _, c := range e.mcpClients {
		closers = append(closers, c)
	}

	wf, err := workflow.New(workflow.Options{
		Agents:       agents,
		Root:         cfg.Root(),
		Managed:      managed,
		InitialState: cfg.InitialState,
		StatePrompt:  cfg.StatePrompt,
		Closers:      closers,
		Logger:       &e.log,
	})
	if err != nil {
		_ = e.Close()
		return nil, fmt.Errorf("engine: %w", err)
	}
	// The workflow owns the MCP clients from here on.
	e.workflow = wf
	e.mcpClients = nil

	if cfg.StateDB != "" {
		db, err := statedb.Open(cfg.StateDB)
		if err != nil {
			_ = e.Close()
			return nil, fmt.Errorf("engine: %w", err)
		}
		e.db = db
	}

	return e, nil
}

func (e *Engine) connectMCP(ctx context.Context) error {
	for _, mc := range e.cfg.MCPServers {
		client, err := mcpclient.New(ctx, mcpclient.Server{
			Name:    mc.Name,
			Command: mc.Command,
			Args:    mc.Args,
			Env:     mc.Env,
		})
		if err != nil {
			return fmt.Errorf("engine: mcp %q: %w", mc.Name, err)
		}
		e.mcpClients = append(e.mcpClients, client)

		tb, err := client.ToolBox(ctx)
		if err != nil {
			return fmt.Errorf("engine: mcp %q: list tools: %w", mc.Name, err)
		}
		e.toolboxes[mc.Name] = tb

		e.log.Info().Str("server", mc.Name).Int("tools", tb.Len()).Msg("mcp server connected")
	}
	return nil
}

func (e *Engine) addRetriever(ctx context.Context, rc RetrieverConfig) error {
	embed := rag.HashEmbedder(rc.Embedder.Dims)
	if rc.Embedder.Kind == "openai" {
		embed = rag.OpenAIEmbedder(rc.Embedder.BaseURL, rc.Embedder.APIKey, rc.Embedder.Model)
	}

	idx, err := rag.NewIndex(rag.IndexOptions{
		Collection: rc.Name,
		Embedder:   embed,
		PersistDir: rc.Persist,
	})
	if err != nil {
		return fmt.Errorf("engine: retriever %q: %w", rc.Name, err)
	}

	r := &retriever{
		cfg:      rc,
		index:    idx,
		splitter: rag.Splitter{ChunkSize: rc.ChunkSize, Overlap: rc.Overlap},
	}
	e.retrievers[rc.Name] = r

	// A persisted collection is reused as is; relay ingest refreshes it.
	if idx.Count() == 0 {
		if _, err := e.ingest(ctx, r); err != nil {
			return err
		}
	}

	mode, _ := rag.ParseMode(rc.Mode)
	tool, err := rag.Tool(idx, rag.ToolOptions{
		Name:        rc.Name,
		Description: rc.Description,
		TopK:        rc.TopK,
		Mode:        mode,
		Completer:   e.completers[rc.Provider],
	})
	if err != nil {
		return fmt.Errorf("engine: retriever %q: %w", rc.Name, err)
	}

	tb := toolbox.New()
	if err := tb.Register(tool); err != nil {
		return fmt.Errorf("engine: retriever %q: %w", rc.Name, err)
	}
	e.toolboxes[rc.Name] = tb

	return nil
}

// ingest loads the sources of r into its index and returns the number of
// chunks written.
func (e *Engine) ingest(ctx context.Context, r *retriever) (int, error) {
	var docs []rag.Document
	if r.cfg.Dir != "" {
		loaded, err := rag.LoadDir(r.cfg.Dir)
		if err != nil {
			return 0, fmt.Errorf("engine: retriever %q: %w", r.cfg.Name, err)
		}
		docs = append(docs, loaded...)
	}
	for i, text := range r.cfg.Documents {
		docs = append(docs, rag.Document{Source: fmt.Sprintf("%s#%d", r.cfg.Name, i), Content: text})
	}

	n, err := r.index.Ingest(ctx, docs, r.splitter)
	if err != nil {
		return 0, fmt.Errorf("engine: retriever %q: %w", r.cfg.Name, err)
	}

	e.log.Info().Str("retriever", r.cfg.Name).Int("documents", len(docs)).Int("chunks", n).Msg("documents ingested")
	return n, nil
}

// buildAgent creates the agent described by ac.
func (e *Engine) buildAgent(ac AgentConfig) (*agent.Agent, error) {
	// Resolve provider, defaulting to the first one.
	providerName := ac.Provider
	if providerName == "" {
		providerName = e.cfg.Providers[0].Name
	}

	completer, ok := e.completers[providerName]
	if !ok {
		return nil, fmt.Errorf("engine: agent %q: provider %q not found", ac.Name, providerName)
	}

	var tbs []*toolbox.ToolBox
	if len(ac.Toolboxes) > 0 {
		merged := toolbox.New()
		for _, name := range ac.Toolboxes {
			tb, ok := e.toolboxes[name]
			if !ok {
				return nil, fmt.Errorf("engine: agent %q: toolbox %q not found", ac.Name, name)
			}
			if err := merged.Merge(tb); err != nil {
				return nil, fmt.Errorf("engine: agent %q: %w", ac.Name, err)
			}
		}
		tbs = append(tbs, merged.Filter(ac.Tools))
	}

	opts, err := agentOptions(ac, e.completers, completer, e.log)
	if err != nil {
		return nil, fmt.Errorf("engine: agent %q: %w", ac.Name, err)
	}

	return agent.New(ac.Name, ac.Description, ac.Instructions, completer, opts, tbs...), nil
}

// Events returns the engine's event bus.
func (e *Engine) Events() *EventBus { return e.events }

// Workflow returns the assembled agent workflow.
func (e *Engine) Workflow() *workflow.Workflow { return e.workflow }

// StateDB returns the snapshot database, or nil when state_db is not set.
func (e *Engine) StateDB() *statedb.DB { return e.db }

// Toolbox returns a configured tool box by name.
func (e *Engine) Toolbox(name string) (*toolbox.ToolBox, bool) {
	tb, ok := e.toolboxes[name]
	return tb, ok
}

// ToolboxNames lists the configured tool boxes, sorted.
func (e *Engine) ToolboxNames() []string {
	names := make([]string, 0, len(e.toolboxes))
	for n := range e.toolboxes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Run sends msg to the root agent on st (a fresh store when nil) and
// publishes the run's steps on the event bus.
func (e *Engine) Run(ctx context.Context, msg string, st *state.Store) (workflow.Result, error) {
	return e.run(ctx, "", msg, st)
}

func (e *Engine) run(ctx context.Context, sessionID, msg string, st *state.Store) (workflow.Result, error) {
	root := e.workflow.Root()
	e.events.Publish(Event{Kind: EventRunStart, SessionID: sessionID, Agent: root})

	res, err := e.workflow.Run(ctx, msg, st, workflow.WithStepHandler(func(s agent.Step) {
		e.events.Publish(Event{Kind: EventStep, SessionID: sessionID, Agent: s.Agent, Step: s})
	}))
	if err != nil {
		e.events.Publish(Event{Kind: EventError, SessionID: sessionID, RunID: res.RunID, Agent: root, Err: err})
	}

	e.events.Publish(Event{Kind: EventRunEnd, SessionID: sessionID, RunID: res.RunID, Agent: root, Answer: res.Answer})
	return res, err
}

// Ingest re-reads the sources of the named retriever into its index.
func (e *Engine) Ingest(ctx context.Context, name string) (int, error) {
	r, ok := e.retrievers[name]
	if !ok {
		return 0, fmt.Errorf("engine: retriever %q not found", name)
	}
	return e.ingest(ctx, r)
}

// Index returns the index of the named retriever.
func (e *Engine) Index(name string) (*rag.Index, bool) {
	r, ok := e.retrievers[name]
	if !ok {
		return nil, false
	}
	return r.index, true
}

// Usage returns the accumulated token usage per provider that reports it.
func (e *Engine) Usage() map[string]usage.TokenCount {
	out := make(map[string]usage.TokenCount)
	for name, c := range e.completers {
		if ur, ok := c.(modeladapter.UsageReporter); ok {
			out[name] = ur.UsageTracker().Total()
		}
	}
	return out
}

// NewSession creates a conversation over one persistent store. An empty id
// allocates one. With state_db configured a session whose id has a saved
// snapshot resumes from it.
func (e *Engine) NewSession(ctx context.Context, id string) (*Session, error) {
	e.mu.Lock()
	if id == "" {
		e.nextID++
		id = fmt.Sprintf("session-%d", e.nextID)
	}
	if _, dup := e.sessions[id]; dup {
		e.mu.Unlock()
		return nil, fmt.Errorf("engine: session %q already exists", id)
	}
	e.mu.Unlock()

	st := e.workflow.NewState()
	if e.db != nil {
		data, err := e.db.Load(ctx, id)
		switch {
		case err == nil:
			st.Replace(data)
		case !errors.Is(err, statedb.ErrSnapshotNotFound):
			return nil, fmt.Errorf("engine: session %q: %w", id, err)
		}
	}

	s := newSession(id, e, st)

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, dup := e.sessions[id]; dup {
		return nil, fmt.Errorf("engine: session %q already exists", id)
	}
	e.sessions[id] = s

	return s, nil
}

// Session returns an existing session by ID.
func (e *Engine) Session(id string) (*Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[id]
	return s, ok
}

// Close shuts down the workflow (and with it the MCP clients) and the state
// database. It is safe to call more than once.
func (e *Engine) Close() error {
	var firstErr error
	closers := make([]io.Closer, 0, len(e.mcpClients)+2)
	for _, c := range e.mcpClients {
		closers = append(closers, c)
	}
	if e.workflow != nil {
		closers = append(closers, e.workflow)
	}
	if e.db != nil {
		closers = append(closers, e.db)
	}

	for _, c := range closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	e.mcpClients = nil
	e.db = nil

	if firstErr == nil {
		e.log.Debug().Msg("engine closed")
	}
	return firstErr
}
