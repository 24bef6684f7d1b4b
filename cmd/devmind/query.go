package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	queryProject string
	queryTopK    int
)

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Ask a question about the analyzed codebase",
	Long: `Query classifies the question and routes it to the matching backends:
semantic questions hit the embedding index, structural questions hit the
code graph, temporal questions hit the analysis history. Mixed questions
consult everything and fuse the results.

Examples:
  devmind query "where is the payment retry logic" --project billing
  devmind query "what calls process_payment" --project billing
  devmind query "did we analyze this before" --project billing`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&queryProject, "project", "", "project name (default: current directory name)")
	queryCmd.Flags().IntVar(&queryTopK, "top-k", 5, "maximum semantic results")
}

func runQuery(cmd *cobra.Command, args []string) error {
	project, err := resolveProject(queryProject, ".")
	if err != nil {
		return err
	}
	question := strings.Join(args, " ")

	ctx := cmd.Context()
	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.close(ctx)

	fused, err := app.registry.Query().Execute(ctx, project, question, queryTopK)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(fused)
	}

	fmt.Printf("Query type: %s (confidence %.2f, %s)\n",
		fused.Type, fused.Confidence, fused.ExecutionTime.Round(timeRound))
	if len(fused.Results) == 0 {
		fmt.Println("No results.")
	}
	for i, item := range fused.Results {
		fmt.Printf("%2d. %s", i+1, item.Name)
		if item.Path != "" {
			fmt.Printf("  (%s)", item.Path)
		}
		fmt.Printf("  [%s]\n", item.Source)
		if item.Relation != "" {
			fmt.Printf("      %s\n", item.Relation)
		}
		if item.Snippet != "" {
			fmt.Printf("      %s\n", firstLine(item.Snippet))
		}
	}
	for _, rec := range fused.Recommendations {
		fmt.Printf("Hint: %s\n", rec)
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
