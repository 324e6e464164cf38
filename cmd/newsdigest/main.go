package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/newsdigest-mcp/internal/config"
	"github.com/dshills/newsdigest-mcp/internal/logger"
	"github.com/dshills/newsdigest-mcp/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

// cli carries the global flags and what PersistentPreRunE derives from them.
type cli struct {
	configPath string
	envFile    string
	logLevel   string
	logJSON    bool

	cfg *config.Config
	log logger.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "newsdigest",
		Short:         "Compose focused industry news digests with retrieval-augmented search",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.load(cmd)
		},
	}
	root.SetVersionTemplate(fmt.Sprintf("newsdigest %s\nBuild Time: %s\nBuild Mode: %s\nSQLite Driver: %s\n",
		version, buildTime, storage.BuildMode, storage.DriverName))

	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "config file (default "+config.DefaultPath+" when present)")
	flags.StringVar(&c.envFile, "env-file", "", "env file to load (default .env when present)")
	flags.StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.BoolVar(&c.logJSON, "log-json", false, "log as JSON")

	root.AddCommand(
		newServeCmd(c),
		newComposeCmd(c),
		newSessionCmd(c),
		newEmbedCmd(c),
	)
	return root
}

// load reads the env file and configuration and builds the logger. Logs
// always go to stderr; stdout belongs to MCP or command output.
func (c *cli) load(cmd *cobra.Command) error {
	if err := config.LoadEnvFile(c.envFile); err != nil {
		return err
	}
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	if cmd.Flags().Changed("log-json") {
		cfg.Log.JSON = c.logJSON
	}

	lc := logger.DefaultConfig()
	lc.Level = logger.ParseLevel(cfg.Log.Level)
	lc.JSON = cfg.Log.JSON
	c.cfg = cfg
	c.log = logger.New(lc)
	if cfg.Path != "" {
		c.log.Debug("configuration loaded", "path", cfg.Path)
	}
	return nil
}
