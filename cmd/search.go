package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tagforge/plugman/internal/i18n"
	"github.com/tagforge/plugman/internal/manager"
	"github.com/tagforge/plugman/internal/search"
	"github.com/tagforge/plugman/internal/tui"
)

var searchSimple bool

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the plugin registry",
	Long: `Search the registry with fuzzy matching over plugin ids, sources
and trust levels.

Example:
  plugman search cover
  plugman search lyrics --simple`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse the registry interactively",
	Long: `Open an interactive picker over the registry. Toggling entries
installs the newly selected plugins and uninstalls the deselected ones.`,
	RunE: runBrowse,
}

var refreshRegistryCmd = &cobra.Command{
	Use:   "refresh-registry",
	Short: "Redownload the registry, bypassing the cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := newManager(cmd.Context())
		if err != nil {
			return err
		}
		if err := mgr.RefreshRegistry(cmd.Context()); err != nil {
			return err
		}
		fmt.Println(i18n.T("RegistryRefreshed", nil))
		return nil
	},
}

func init() {
	searchCmd.Flags().BoolVar(&searchSimple, "simple", false, "substring match instead of fuzzy")

	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(browseCmd)
	rootCmd.AddCommand(refreshRegistryCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	mgr, err := newManager(ctx)
	if err != nil {
		return err
	}

	entries, err := mgr.RegistryEntries(ctx)
	if err != nil {
		return err
	}

	docs := search.FromEntries(entries)

	var results []search.Result
	if searchSimple {
		results = search.SimpleSearch(docs, args[0])
	} else {
		results = search.FuzzySearch(docs, args[0])
	}

	if len(results) == 0 {
		fmt.Println(i18n.T("NoSearchResults", map[string]any{"Query": args[0]}))
		return nil
	}

	for _, r := range results {
		fmt.Printf("  %s\n", r.Doc.ID)
		fmt.Printf("    %s\n", r.Doc.Description)
	}
	return nil
}

func runBrowse(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	mgr, err := newManager(ctx)
	if err != nil {
		return err
	}

	entries, err := mgr.RegistryEntries(ctx)
	if err != nil {
		return err
	}

	installed := map[string]bool{}
	for _, p := range mgr.List() {
		installed[p.UUID] = true
	}

	result, err := tui.RunBrowser(entries, installed)
	if err != nil {
		return err
	}
	if result.Cancelled {
		fmt.Println(i18n.T("Aborted", nil))
		return nil
	}

	for _, item := range result.ToInstall {
		p, err := mgr.Install(ctx, manager.InstallOptions{Source: item.Entry.ID})
		if err != nil {
			fmt.Printf("  install %s: %v\n", item.Entry.ID, err)
			continue
		}
		fmt.Println(i18n.T("InstallDone", map[string]any{"Plugin": p.ID, "Ref": p.Ref}))
	}

	for _, item := range result.ToUninstall {
		p := findInstalledByUUID(mgr, item.Entry.UUID)
		if p == nil {
			continue
		}
		if err := mgr.Uninstall(ctx, p.ID, false); err != nil {
			fmt.Printf("  uninstall %s: %v\n", p.ID, err)
			continue
		}
		fmt.Println(i18n.T("UninstallDone", map[string]any{"Plugin": p.ID}))
	}
	return nil
}

func findInstalledByUUID(mgr *manager.Manager, uuid string) *manager.Plugin {
	for _, p := range mgr.List() {
		if p.UUID == uuid {
			return p
		}
	}
	return nil
}
