package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/yaverlabs/devmind/internal/session"
)

var (
	sessionTags      []string
	sessionRemoveTag bool
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage analysis sessions",
	Long: `Sessions group related analysis work. Each session keeps a journal
with a task plan, findings, and a progress log under the state directory.

Examples:
  devmind session create "payment refactor" --tags payments,refactor
  devmind session list
  devmind session use a1b2c3d4
  devmind session tag a1b2c3d4 urgent
  devmind session delete a1b2c3d4`,
}

var sessionCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a session and make it active",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSessionCreate,
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions",
	RunE:  runSessionList,
}

var sessionUseCmd = &cobra.Command{
	Use:   "use <id>",
	Short: "Switch the active session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionUse,
}

var sessionTagCmd = &cobra.Command{
	Use:   "tag <id> <tag>",
	Short: "Add or remove a session tag",
	Args:  cobra.ExactArgs(2),
	RunE:  runSessionTag,
}

var sessionDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a session and its journal",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionDelete,
}

func init() {
	sessionCreateCmd.Flags().StringSliceVar(&sessionTags, "tags", nil, "tags for the new session")
	sessionTagCmd.Flags().BoolVar(&sessionRemoveTag, "remove", false, "remove the tag instead of adding it")

	sessionCmd.AddCommand(sessionCreateCmd)
	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionUseCmd)
	sessionCmd.AddCommand(sessionTagCmd)
	sessionCmd.AddCommand(sessionDeleteCmd)
}

// sessionManager builds a Manager without booting the full service
// stack, sessions only touch the state directory.
func sessionManager() (*session.Manager, error) {
	cfg, logger, err := loadConfigAndLogger()
	if err != nil {
		return nil, err
	}
	return session.NewManager(cfg.Session, logger)
}

func runSessionCreate(cmd *cobra.Command, args []string) error {
	mgr, err := sessionManager()
	if err != nil {
		return err
	}
	name := ""
	if len(args) == 1 {
		name = args[0]
	}
	sess, err := mgr.Create(cmd.Context(), name, sessionTags)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(sess)
	}
	fmt.Printf("Created session %s (%s), now active.\n", sess.ID, sess.Name)
	return nil
}

func runSessionList(cmd *cobra.Command, args []string) error {
	mgr, err := sessionManager()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	sessions, err := mgr.List(ctx)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(sessions)
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions. Create one with: devmind session create")
		return nil
	}
	activeID := ""
	if active, err := mgr.Active(ctx); err == nil {
		activeID = active.ID
	}
	for _, s := range sessions {
		marker := " "
		if s.ID == activeID {
			marker = "*"
		}
		line := fmt.Sprintf("%s %s  %-24s  %s", marker, s.ID, s.Name, s.LastUsed.Format(time.DateTime))
		if len(s.Tags) > 0 {
			line += "  [" + strings.Join(s.Tags, ", ") + "]"
		}
		fmt.Println(line)
	}
	return nil
}

func runSessionUse(cmd *cobra.Command, args []string) error {
	mgr, err := sessionManager()
	if err != nil {
		return err
	}
	if err := mgr.Use(cmd.Context(), args[0]); err != nil {
		return err
	}
	sess, err := mgr.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Active session is now %s (%s).\n", sess.ID, sess.Name)
	return nil
}

func runSessionTag(cmd *cobra.Command, args []string) error {
	mgr, err := sessionManager()
	if err != nil {
		return err
	}
	id, tag := args[0], args[1]
	if sessionRemoveTag {
		if err := mgr.RemoveTag(cmd.Context(), id, tag); err != nil {
			return err
		}
		fmt.Printf("Removed tag %q from session %s.\n", tag, id)
		return nil
	}
	if err := mgr.AddTag(cmd.Context(), id, tag); err != nil {
		return err
	}
	fmt.Printf("Tagged session %s with %q.\n", id, tag)
	return nil
}

func runSessionDelete(cmd *cobra.Command, args []string) error {
	mgr, err := sessionManager()
	if err != nil {
		return err
	}
	if err := mgr.Delete(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted session %s.\n", args[0])
	return nil
}
