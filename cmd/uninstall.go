package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tagforge/plugman/internal/i18n"
	"github.com/tagforge/plugman/internal/plugerr"
	"github.com/tagforge/plugman/internal/tui"
)

var (
	uninstallPurge bool
	uninstallYes   bool
)

var uninstallCmd = &cobra.Command{
	Use:     "uninstall <plugin-id>",
	Aliases: []string{"remove", "rm"},
	Short:   "Remove an installed plugin",
	Long: `Remove an installed plugin. Plugin-scoped settings survive a plain
uninstall; --purge deletes them too.

Example:
  plugman uninstall cover-art-fetcher-b9a7f9d2
  plugman uninstall cover-art-fetcher-b9a7f9d2 --purge`,
	Args: cobra.ExactArgs(1),
	RunE: runUninstall,
}

var cleanConfigCmd = &cobra.Command{
	Use:   "clean-config <plugin-id>",
	Short: "Delete the leftover settings of an uninstalled plugin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := newManager(cmd.Context())
		if err != nil {
			return err
		}
		if err := mgr.CleanConfig(args[0]); err != nil {
			return err
		}
		fmt.Println(i18n.T("CleanConfigDone", map[string]any{"Plugin": args[0]}))
		return nil
	},
}

func init() {
	uninstallCmd.Flags().BoolVar(&uninstallPurge, "purge", false, "also delete plugin-scoped settings")
	uninstallCmd.Flags().BoolVarP(&uninstallYes, "yes", "y", false, "skip the confirmation prompt")

	rootCmd.AddCommand(uninstallCmd)
	rootCmd.AddCommand(cleanConfigCmd)
}

func runUninstall(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id := args[0]

	mgr, err := newManager(ctx)
	if err != nil {
		return err
	}

	// purge is irreversible, so it gets a prompt
	if uninstallPurge && !uninstallYes {
		yes, confirmed, err := tui.RunConfirm(i18n.T("PurgePrompt", nil), id)
		if err != nil {
			return err
		}
		if !confirmed || !yes {
			fmt.Println(i18n.T("Aborted", nil))
			return &plugerr.CancelledError{}
		}
	}

	if err := mgr.Uninstall(ctx, id, uninstallPurge); err != nil {
		return err
	}

	fmt.Println(i18n.T("UninstallDone", map[string]any{"Plugin": id}))
	return nil
}
