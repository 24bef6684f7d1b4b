// Package main implements the devmind CLI: codebase analysis, code
// graph queries, impact analysis, work sessions, and the HTTP daemon.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yaverlabs/devmind/internal/config"
	"github.com/yaverlabs/devmind/internal/logging"
	"github.com/yaverlabs/devmind/internal/services"
	"github.com/yaverlabs/devmind/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var (
	configPath string
	jsonOutput bool
)

// timeRound trims durations for human output.
const timeRound = time.Millisecond

var rootCmd = &cobra.Command{
	Use:   "devmind",
	Short: "Codebase intelligence daemon and CLI",
	Long: `devmind analyzes repositories into a code graph and a code embedding
index, and answers questions about structure, impact, and history.

Run "devmind analyze" in a repository, then query it:

  devmind analyze --project myproject
  devmind query "what calls process_payment" --project myproject
  devmind impact process_payment --change-type signature --project myproject`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"config file path (default ~/.config/devmind/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"print machine-readable JSON output")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(impactCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(projectCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(versionCmd)
}

// app bundles everything a command needs after bootstrap.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	registry  services.Registry
	shutdown  func(context.Context) error
}

// newApp loads config and wires the full service registry. Commands
// that only need one subsystem construct it directly instead.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	tel, err := telemetry.New(ctx, cfg.Observability)
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}
	registry, shutdown, err := services.Bootstrap(ctx, cfg, logger)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, err
	}
	return &app{
		cfg:       cfg,
		logger:    logger,
		telemetry: tel,
		registry:  registry,
		shutdown:  shutdown,
	}, nil
}

func (a *app) close(ctx context.Context) {
	if err := a.shutdown(ctx); err != nil {
		a.logger.Warn(ctx, "shutdown error", zap.Error(err))
	}
	_ = a.telemetry.Shutdown(ctx)
	_ = a.logger.Sync()
}

// loadConfigAndLogger is the light bootstrap for commands that do not
// need the analysis backends.
func loadConfigAndLogger() (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("building logger: %w", err)
	}
	return cfg, logger, nil
}

// resolveProject returns the project name, deriving it from the
// repository directory when the flag is empty.
func resolveProject(flag, path string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}
	name := sanitizeProjectName(filepath.Base(abs))
	if name == "" {
		return "", fmt.Errorf("cannot derive a project name from %s, use --project", abs)
	}
	return name, nil
}

func sanitizeProjectName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "_")
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("devmind\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}
