package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tagforge/plugman/internal/i18n"
	"github.com/tagforge/plugman/internal/manager"
	"github.com/tagforge/plugman/internal/plugerr"
	"github.com/tagforge/plugman/internal/tui"
)

var (
	installRef       string
	installReinstall bool
	installForce     bool
	installEnable    bool
)

var installCmd = &cobra.Command{
	Use:   "install <plugin>",
	Short: "Install a plugin by registry id, git URL or local path",
	Long: `Install a plugin. The source can be a registry id, a git URL or a
path to a local git repository.

Example:
  plugman install cover-art-fetcher
  plugman install https://example.org/plugins/lyrics-lookup.git --ref v2.1.0
  plugman install ./my-plugin --enable`,
	Args: cobra.ExactArgs(1),
	RunE: runInstall,
}

func init() {
	installCmd.Flags().StringVarP(&installRef, "ref", "r", "", "branch, tag or commit to install")
	installCmd.Flags().BoolVar(&installReinstall, "reinstall", false, "replace an existing install")
	installCmd.Flags().BoolVar(&installForce, "force-blacklisted", false, "install even if the plugin is blacklisted")
	installCmd.Flags().BoolVar(&installEnable, "enable", false, "enable the plugin after install")

	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	mgr, err := newManager(ctx)
	if err != nil {
		return err
	}

	opts := manager.InstallOptions{
		Source:           args[0],
		Ref:              installRef,
		Reinstall:        installReinstall,
		ForceBlacklisted: installForce,
	}

	p, err := mgr.Install(ctx, opts)

	// a blacklist hit can be overridden interactively
	var blocked *plugerr.BlacklistedError
	if errors.As(err, &blocked) && !installForce {
		yes, confirmed, promptErr := tui.RunConfirm(
			i18n.T("BlacklistPrompt", map[string]any{"Source": args[0]}),
			blocked.Reason,
		)
		if promptErr != nil || !confirmed || !yes {
			return err
		}
		opts.ForceBlacklisted = true
		p, err = mgr.Install(ctx, opts)
	}

	var incompat *plugerr.IncompatibleAPIError
	if errors.As(err, &incompat) {
		// installed, but unusable under this host version
		fmt.Println(i18n.T("InstalledIncompatible", map[string]any{
			"Plugin": p.ID,
			"Host":   incompat.HostVersion,
		}))
		return err
	}
	if err != nil {
		return err
	}

	fmt.Println(i18n.T("InstallDone", map[string]any{"Plugin": p.ID, "Ref": refOrDefault(p.Ref)}))

	if installEnable {
		if err := mgr.Enable(ctx, p.ID); err != nil {
			return err
		}
		fmt.Println(i18n.T("EnableDone", map[string]any{"Plugin": p.ID}))
	}
	return nil
}
