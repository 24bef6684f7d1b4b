package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yaverlabs/devmind/internal/impact"
)

var (
	impactProject    string
	impactChangeType string
)

var impactCmd = &cobra.Command{
	Use:   "impact <function>",
	Short: "Estimate the blast radius of changing a function",
	Long: `Impact walks the call graph upward from the given function and scores
the risk of a change. The function can be a simple name or a full
identifier of the form path::Name.

Examples:
  devmind impact process_payment --project billing
  devmind impact "src/core/gateway.py::Gateway.charge" --change-type rename`,
	Args: cobra.ExactArgs(1),
	RunE: runImpact,
}

func init() {
	impactCmd.Flags().StringVar(&impactProject, "project", "", "project name (default: current directory name)")
	impactCmd.Flags().StringVar(&impactChangeType, "change-type", "signature", "change type: logic, signature, or rename")
}

func runImpact(cmd *cobra.Command, args []string) error {
	project, err := resolveProject(impactProject, ".")
	if err != nil {
		return err
	}
	change, err := impact.ParseChangeType(impactChangeType)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.close(ctx)

	result, err := app.registry.Impact().Analyze(ctx, project, args[0], change)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(result)
	}

	if !result.Found {
		fmt.Printf("Function %q not found in project %q.\n", args[0], project)
		fmt.Println(result.Reasoning)
		return nil
	}
	fmt.Printf("Impact of %s change to %s\n", result.ChangeType, result.Target)
	fmt.Printf("  Risk score:         %.1f\n", result.RiskScore)
	fmt.Printf("  Direct callers:     %d\n", len(result.DirectCallers))
	fmt.Printf("  Transitive callers: %d\n", len(result.TransitiveCallers))
	fmt.Printf("  Affected files:     %d\n", len(result.AffectedFiles))
	for _, fn := range result.DirectCallers {
		fmt.Printf("    <- %s (%s)\n", fn.Name, fn.Path)
	}
	fmt.Println(result.Reasoning)
	return nil
}
