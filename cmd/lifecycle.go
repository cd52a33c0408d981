package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tagforge/plugman/internal/i18n"
)

var enableCmd = &cobra.Command{
	Use:   "enable <plugin-id>",
	Short: "Enable an installed plugin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := newManager(cmd.Context())
		if err != nil {
			return err
		}
		if err := mgr.Enable(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Println(i18n.T("EnableDone", map[string]any{"Plugin": args[0]}))
		return nil
	},
}

var disableCmd = &cobra.Command{
	Use:   "disable <plugin-id>",
	Short: "Disable an enabled plugin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := newManager(cmd.Context())
		if err != nil {
			return err
		}
		if err := mgr.Disable(args[0]); err != nil {
			return err
		}
		fmt.Println(i18n.T("DisableDone", map[string]any{"Plugin": args[0]}))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(enableCmd)
	rootCmd.AddCommand(disableCmd)
}
