package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check backend connectivity",
	Long: `Health boots the configured backends and reports their status. A
failing vector store degrades the overall status rather than failing
the command.`,
	RunE: runHealth,
}

func runHealth(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.close(ctx)

	components := map[string]string{}
	status := "ok"

	if vector := app.registry.VectorStore(); vector != nil {
		if err := vector.Healthy(ctx); err != nil {
			components["vectorstore"] = err.Error()
			status = "degraded"
		} else {
			components["vectorstore"] = "ok"
		}
	}
	if app.registry.Graph() != nil {
		components["graph"] = "ok"
	}
	if app.registry.History() != nil {
		components["history"] = "ok"
	}
	if app.telemetry != nil && app.telemetry.Degraded() {
		components["telemetry"] = "degraded"
	}

	if jsonOutput {
		return printJSON(map[string]any{"status": status, "components": components})
	}

	fmt.Printf("Status: %s\n", status)
	names := make([]string, 0, len(components))
	for name := range components {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %-12s %s\n", name, components[name])
	}
	return nil
}
