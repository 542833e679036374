package main

import (
	"errors"
	"os"

	"github.com/germanamz/relay/pkg/engine"
	"github.com/germanamz/relay/pkg/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

// globals holds the persistent flags shared by every command.
type globals struct {
	configPath string
	envFile    string
	logLevel   string
	verbose    bool
}

func newRootCommand() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:   "relay",
		Short: "Multi-agent workflows over pluggable models and tools",
		Long: `Relay runs tool-calling and code-writing agents, lets managers delegate to
worker agents and shares one state store across a run. Agents, providers,
MCP servers and retrievers are declared in a YAML configuration.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return loadDotEnv(g.envFile)
		},
	}

	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "relay.yaml", "path to configuration file")
	root.PersistentFlags().StringVar(&g.envFile, "env", ".env", "path to .env file (ignored if missing)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "print token usage after runs")

	root.AddCommand(
		newRunCommand(g),
		newChatCommand(g),
		newToolsCommand(g),
		newIngestCommand(g),
		newStateCommand(g),
		newFlightCommand(),
	)

	return root
}

// loadDotEnv loads environment variables from path. A missing file is not
// an error.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (g *globals) loadConfig() (engine.Config, error) {
	cfg, err := engine.LoadConfig(g.configPath)
	if err != nil {
		return engine.Config{}, err
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	return cfg, nil
}

// openEngine builds the engine from the configuration. Logs go to the
// command's stderr. The returned func releases the engine and the log file.
func (g *globals) openEngine(cmd *cobra.Command) (*engine.Engine, func(), error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, nil, err
	}

	log, err := logging.New(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}

	eng, err := engine.New(cmd.Context(), cfg, engine.WithLogger(log.Logger))
	if err != nil {
		_ = log.Close()
		return nil, nil, err
	}

	return eng, func() {
		_ = eng.Close()
		_ = log.Close()
	}, nil
}
