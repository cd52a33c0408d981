package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tagforge/plugman/internal/i18n"
	"github.com/tagforge/plugman/internal/manager"
	"github.com/tagforge/plugman/internal/plugerr"
	"github.com/tagforge/plugman/internal/tui"
)

var updateRef string

var updateCmd = &cobra.Command{
	Use:   "update <plugin-id>",
	Short: "Update a plugin to its newest matching ref",
	Long: `Update a plugin. Branch installs fast-forward to the remote tip,
version-tag installs move to the highest newer tag of the same family,
plain tags and commits never move. --ref switches to a different ref.

Example:
  plugman update cover-art-fetcher-b9a7f9d2
  plugman update cover-art-fetcher-b9a7f9d2 --ref v2.1.0`,
	Args: cobra.ExactArgs(1),
	RunE: runUpdate,
}

var updateAllCmd = &cobra.Command{
	Use:   "update-all",
	Short: "Update every installed plugin",
	RunE:  runUpdateAll,
}

var checkUpdatesCmd = &cobra.Command{
	Use:   "check-updates",
	Short: "Report available updates without applying them",
	RunE:  runCheckUpdates,
}

var switchRefCmd = &cobra.Command{
	Use:   "switch-ref <plugin-id> [ref]",
	Short: "Switch a plugin to a different branch, tag or commit",
	Long: `Switch a plugin to a different ref. Without an explicit ref the
registry's declared refs are offered interactively.

Example:
  plugman switch-ref lyrics-lookup-1c2d3e4f v2.1.0
  plugman switch-ref lyrics-lookup-1c2d3e4f`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runSwitchRef,
}

func init() {
	updateCmd.Flags().StringVarP(&updateRef, "ref", "r", "", "switch to this ref instead of updating in place")

	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(updateAllCmd)
	rootCmd.AddCommand(checkUpdatesCmd)
	rootCmd.AddCommand(switchRefCmd)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	mgr, err := newManager(ctx)
	if err != nil {
		return err
	}

	report, err := mgr.Update(ctx, args[0], updateRef)
	if err != nil {
		return err
	}

	printReport(report)
	return nil
}

func runUpdateAll(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	mgr, err := newManager(ctx)
	if err != nil {
		return err
	}

	reports := mgr.UpdateAll(ctx)
	if len(reports) == 0 {
		fmt.Println(i18n.T("NoPluginsInstalled", nil))
		return nil
	}

	failed := 0
	for _, r := range reports {
		printReport(r)
		if r.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d plugins failed to update", failed, len(reports))
	}
	return nil
}

func runCheckUpdates(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	mgr, err := newManager(ctx)
	if err != nil {
		return err
	}

	reports := mgr.CheckUpdates(ctx)
	available := 0
	for _, r := range reports {
		if r.Err != nil {
			fmt.Printf("  %s: error: %v\n", r.ID, r.Err)
			continue
		}
		if r.Changed {
			available++
			fmt.Printf("  %s: %s", r.ID, describeMove(r))
			fmt.Println()
		}
	}

	if available == 0 {
		fmt.Println(i18n.T("NoUpdates", nil))
	} else {
		fmt.Println(i18n.T("UpdatesAvailable", map[string]any{"Count": available}, available))
	}
	return nil
}

func runSwitchRef(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id := args[0]

	mgr, err := newManager(ctx)
	if err != nil {
		return err
	}

	var ref string
	if len(args) == 2 {
		ref = args[1]
	} else {
		ref, err = pickRef(ctx, mgr, id)
		if err != nil {
			return err
		}
		if ref == "" {
			fmt.Println(i18n.T("Aborted", nil))
			return &plugerr.CancelledError{}
		}
	}

	report, err := mgr.SwitchRef(ctx, id, ref)
	if err != nil {
		return err
	}

	printReport(report)
	return nil
}

// pickRef offers the registry's declared refs interactively
func pickRef(ctx context.Context, mgr *manager.Manager, id string) (string, error) {
	p, err := mgr.Get(id)
	if err != nil {
		return "", err
	}

	entry, err := mgr.FindRegistryEntry(ctx, p.URL)
	if err != nil {
		return "", err
	}

	options := tui.RefOptionsFromEntry(entry, p.Ref)
	if len(options) == 0 {
		return "", fmt.Errorf("registry declares no refs for %s", id)
	}

	ref, confirmed, err := tui.RunRefSelector(id, options)
	if err != nil || !confirmed {
		return "", err
	}
	return ref, nil
}

func printReport(r manager.UpdateReport) {
	switch {
	case r.Err != nil:
		fmt.Printf("  %s: error: %v\n", r.ID, r.Err)
	case r.Changed:
		fmt.Printf("  %s: %s\n", r.ID, describeMove(r))
	default:
		fmt.Printf("  %s: %s\n", r.ID, i18n.T("UpToDate", nil))
	}
}

func describeMove(r manager.UpdateReport) string {
	if r.OldRef != r.NewRef {
		return fmt.Sprintf("%s -> %s (%s)", r.OldRef, r.NewRef, shortCommit(r.NewCommit))
	}
	return fmt.Sprintf("%s -> %s", shortCommit(r.OldCommit), shortCommit(r.NewCommit))
}
