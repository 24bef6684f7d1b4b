package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	graphProject     string
	graphCallerDepth int
	graphTraceDepth  int
	graphMaxLen      int
	graphThreshold   int
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Inspect the code graph",
	Long: `Graph exposes structural queries over the analyzed call graph.

Examples:
  devmind graph callers process_payment --project billing --depth 2
  devmind graph cycles --project billing
  devmind graph coupling --project billing --threshold 5
  devmind graph trace "src/api/handlers.py::handle" --depth 3`,
}

var graphCallersCmd = &cobra.Command{
	Use:   "callers <function>",
	Short: "List functions that call the given function",
	Args:  cobra.ExactArgs(1),
	RunE:  runGraphCallers,
}

var graphCyclesCmd = &cobra.Command{
	Use:   "cycles",
	Short: "Detect circular call chains",
	RunE:  runGraphCycles,
}

var graphCouplingCmd = &cobra.Command{
	Use:   "coupling",
	Short: "List tightly coupled file pairs",
	RunE:  runGraphCoupling,
}

var graphTraceCmd = &cobra.Command{
	Use:   "trace <function>",
	Short: "Expand the call graph downstream from a function",
	Args:  cobra.ExactArgs(1),
	RunE:  runGraphTrace,
}

func init() {
	graphCmd.PersistentFlags().StringVar(&graphProject, "project", "", "project name (default: current directory name)")
	graphCallersCmd.Flags().IntVar(&graphCallerDepth, "depth", 1, "maximum caller depth")
	graphTraceCmd.Flags().IntVar(&graphTraceDepth, "depth", 3, "maximum callee depth")
	graphCyclesCmd.Flags().IntVar(&graphMaxLen, "max-len", 10, "maximum cycle length in edges")
	graphCouplingCmd.Flags().IntVar(&graphThreshold, "threshold", 5, "minimum cross-calls between two files")

	graphCmd.AddCommand(graphCallersCmd)
	graphCmd.AddCommand(graphCyclesCmd)
	graphCmd.AddCommand(graphCouplingCmd)
	graphCmd.AddCommand(graphTraceCmd)
}

func runGraphCallers(cmd *cobra.Command, args []string) error {
	project, err := resolveProject(graphProject, ".")
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.close(ctx)

	store := app.registry.Graph()
	node, err := store.FindFunction(ctx, project, args[0])
	if err != nil {
		return err
	}
	callers, err := store.TransitiveCallers(ctx, project, node.ID, graphCallerDepth)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(callers)
	}
	if len(callers) == 0 {
		fmt.Printf("Nothing calls %s.\n", node.ID)
		return nil
	}
	fmt.Printf("Callers of %s (depth %d):\n", node.ID, graphCallerDepth)
	for _, c := range callers {
		fmt.Printf("  %s%s (%s)\n", strings.Repeat("  ", c.Depth-1), c.Node.Name, c.Node.Path)
	}
	return nil
}

func runGraphCycles(cmd *cobra.Command, args []string) error {
	project, err := resolveProject(graphProject, ".")
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.close(ctx)

	cycles, err := app.registry.Graph().CircularDependencies(ctx, project, graphMaxLen)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cycles)
	}
	if len(cycles) == 0 {
		fmt.Println("No circular dependencies found.")
		return nil
	}
	fmt.Printf("Found %d circular dependencies:\n", len(cycles))
	for i, cycle := range cycles {
		fmt.Printf("  %d. %s\n", i+1, strings.Join(cycle.Members, " -> "))
	}
	return nil
}

func runGraphCoupling(cmd *cobra.Command, args []string) error {
	project, err := resolveProject(graphProject, ".")
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.close(ctx)

	pairs, err := app.registry.Impact().CoupledModules(ctx, project, graphThreshold)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(pairs)
	}
	if len(pairs) == 0 {
		fmt.Printf("No file pairs with %d or more cross-calls.\n", graphThreshold)
		return nil
	}
	for _, p := range pairs {
		fmt.Printf("  %s <-> %s  (%d calls)\n", p.FileA, p.FileB, p.Calls)
	}
	return nil
}

func runGraphTrace(cmd *cobra.Command, args []string) error {
	project, err := resolveProject(graphProject, ".")
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.close(ctx)

	store := app.registry.Graph()
	node, err := store.FindFunction(ctx, project, args[0])
	if err != nil {
		return err
	}
	trace, err := store.CallGraph(ctx, project, node.ID, graphTraceDepth)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(trace)
	}
	fmt.Printf("Call graph from %s (depth %d): %d functions, %d calls\n",
		trace.Root, trace.Depth, len(trace.Nodes), len(trace.Edges))
	for _, e := range trace.Edges {
		fmt.Printf("  %s -> %s\n", e.From, e.To)
	}
	return nil
}
