package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tagforge/plugman/internal/i18n"
	"github.com/tagforge/plugman/internal/state"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed plugins and their states",
	Long: `List all installed plugins with their ref, commit and state.

Example:
  plugman list`,
	RunE: runList,
}

var statusCmd = &cobra.Command{
	Use:   "status <plugin-id>",
	Short: "Show the lifecycle state of one plugin",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statusCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	mgr, err := newManager(cmd.Context())
	if err != nil {
		return err
	}

	plugins := mgr.List()

	fmt.Println(i18n.T("ListHeader", nil))
	fmt.Println(strings.Repeat("-", 40))

	if len(plugins) == 0 {
		fmt.Println(i18n.T("NoPluginsInstalled", nil))
		return nil
	}

	for _, p := range plugins {
		fmt.Printf("  %s [%s]\n", p.ID, p.State())
		fmt.Printf("    Name: %s\n", p.Name)
		fmt.Printf("    Source: %s\n", p.URL)
		fmt.Printf("    Ref: %s @ %s\n", refOrDefault(p.Ref), shortCommit(p.Commit))
		if p.State() == state.Error && p.FailureReason() != "" {
			fmt.Printf("    Reason: %s\n", p.FailureReason())
		}
		fmt.Println()
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	mgr, err := newManager(cmd.Context())
	if err != nil {
		return err
	}

	p, err := mgr.Get(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("%s: %s\n", p.ID, p.State())
	if p.FailureReason() != "" {
		fmt.Printf("  Reason: %s\n", p.FailureReason())
	}
	return nil
}

func refOrDefault(ref string) string {
	if ref == "" {
		return "default"
	}
	return ref
}

func shortCommit(commit string) string {
	if len(commit) > 8 {
		return commit[:8]
	}
	if commit == "" {
		return "unknown"
	}
	return commit
}
