package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/yaverlabs/devmind/internal/services"
)

var (
	analyzeProject string
	analyzeForce   bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [path]",
	Short: "Analyze a repository into the code graph and embedding index",
	Long: `Analyze parses the repository, builds the code graph, indexes code
chunks for semantic search, and records the run in the analysis history.

Repositories with no changes since the last analyzed commit are skipped;
repositories with a recorded prior commit get an incremental run over
the changed files only.

Examples:
  # Analyze the current directory
  devmind analyze

  # Analyze a specific repository under a project name
  devmind analyze ~/src/billing --project billing

  # Force a full re-analysis
  devmind analyze --force`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeProject, "project", "", "project name (default: repository directory name)")
	analyzeCmd.Flags().BoolVar(&analyzeForce, "force", false, "re-analyze even when nothing changed")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	path := "."
	if len(args) == 1 {
		path = args[0]
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}
	project, err := resolveProject(analyzeProject, abs)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.close(ctx)

	report, err := app.registry.Pipeline().Analyze(ctx, services.AnalyzeOptions{
		Project: project,
		Path:    abs,
		Force:   analyzeForce,
	})
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(report)
	}
	if report.Skipped {
		fmt.Printf("Analysis skipped: %s\n", report.Reason)
		return nil
	}
	fmt.Printf("Analyzed %s (%s)\n", project, report.Type)
	fmt.Printf("  Files:      %d of %d\n", report.FilesAnalyzed, report.FilesTotal)
	fmt.Printf("  Functions:  %d\n", report.Functions)
	fmt.Printf("  Call edges: %d\n", report.CallEdges)
	fmt.Printf("  Indexed:    %d chunks\n", report.ChunksIndexed)
	if report.Commit != "" {
		fmt.Printf("  Commit:     %s\n", report.Commit)
	}
	fmt.Printf("  Duration:   %s\n", report.Duration.Round(timeRound))
	return nil
}
