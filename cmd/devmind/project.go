package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/yaverlabs/devmind/internal/history"
)

var projectHistoryLimit int

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Inspect analyzed projects",
	Long: `Project lists known projects and their analysis runs.

Examples:
  devmind project list
  devmind project history billing --limit 10`,
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List analyzed projects",
	RunE:  runProjectList,
}

var projectHistoryCmd = &cobra.Command{
	Use:   "history <project>",
	Short: "Show recent analysis runs for a project",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectHistory,
}

func init() {
	projectHistoryCmd.Flags().IntVar(&projectHistoryLimit, "limit", 20, "maximum runs to show")

	projectCmd.AddCommand(projectListCmd)
	projectCmd.AddCommand(projectHistoryCmd)
}

// historyStore opens just the history database, project commands do
// not need the analyzer or any remote backend.
func historyStore() (*history.Store, error) {
	cfg, logger, err := loadConfigAndLogger()
	if err != nil {
		return nil, err
	}
	return history.Open(cfg.History, logger)
}

func runProjectList(cmd *cobra.Command, args []string) error {
	store, err := historyStore()
	if err != nil {
		return err
	}
	defer store.Close()

	projects, err := store.Projects(cmd.Context())
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(projects)
	}
	if len(projects) == 0 {
		fmt.Println("No analyzed projects. Run: devmind analyze <path>")
		return nil
	}
	for _, p := range projects {
		fmt.Printf("%-24s  %d runs  last %s  commit %s\n",
			p.Project, p.TotalAnalyses, p.LastAnalysis.Format(time.DateTime), shortCommit(p.LastCommit))
	}
	return nil
}

func runProjectHistory(cmd *cobra.Command, args []string) error {
	store, err := historyStore()
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.History(cmd.Context(), args[0], projectHistoryLimit)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(runs)
	}
	if len(runs) == 0 {
		fmt.Printf("No analysis history for project %q.\n", args[0])
		return nil
	}
	for _, run := range runs {
		fmt.Printf("%s  %-11s  commit %s  %d/%d files  %s\n",
			run.Timestamp.Format(time.DateTime), run.Type, shortCommit(run.CommitHash),
			run.FilesAnalyzed, run.FilesCount, run.Duration.Round(timeRound))
	}
	return nil
}

func shortCommit(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	if hash == "" {
		return "-"
	}
	return hash
}
