package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tagforge/plugman/internal/i18n"
	"github.com/tagforge/plugman/internal/plugerr"
)

var infoCmd = &cobra.Command{
	Use:   "info <plugin-id>",
	Short: "Show manifest and registry details of an installed plugin",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

var validateCmd = &cobra.Command{
	Use:   "validate <dir>",
	Short: "Validate the plugin manifest in a directory",
	Long: `Validate a plugin checkout without installing it. Every violation
is reported at once.

Example:
  plugman validate ./my-plugin`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(validateCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	mgr, err := newManager(ctx)
	if err != nil {
		return err
	}

	p, err := mgr.Get(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("%s\n", p.ID)
	fmt.Printf("  UUID: %s\n", p.UUID)
	fmt.Printf("  State: %s\n", p.State())
	fmt.Printf("  Source: %s\n", p.URL)
	fmt.Printf("  Ref: %s @ %s\n", refOrDefault(p.Ref), shortCommit(p.Commit))
	fmt.Printf("  Path: %s\n", p.InstallPath)

	if p.OriginalURL != "" {
		fmt.Printf("  Moved from: %s\n", p.OriginalURL)
	}
	if p.OriginalUUID != "" {
		fmt.Printf("  Previous UUID: %s\n", p.OriginalUUID)
	}
	if p.BlacklistBypassed {
		fmt.Printf("  Blacklist: bypassed at install\n")
	}

	if trust, err := mgr.TrustLevel(ctx, p.ID); err == nil {
		fmt.Printf("  Trust: %s\n", trust)
	}

	if m := p.Manifest; m != nil {
		fmt.Println()
		fmt.Printf("  Name: %s\n", m.LocalizedName("en"))
		fmt.Printf("  Description: %s\n", m.LocalizedDescription("en"))
		fmt.Printf("  API: %s\n", strings.Join(m.API, ", "))
		if len(m.Authors) > 0 {
			fmt.Printf("  Authors: %s\n", strings.Join(m.Authors, ", "))
		}
		if m.License != "" {
			fmt.Printf("  License: %s\n", m.License)
		}
		if len(m.Categories) > 0 {
			fmt.Printf("  Categories: %s\n", strings.Join(m.Categories, ", "))
		}
		if m.Homepage != "" {
			fmt.Printf("  Homepage: %s\n", m.Homepage)
		}
	}
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	mgr, err := newManager(cmd.Context())
	if err != nil {
		return err
	}

	violations := mgr.Validate(args[0])
	if len(violations) == 0 {
		fmt.Println(i18n.T("ManifestValid", nil))
		return nil
	}

	fmt.Println(i18n.T("ManifestInvalid", map[string]any{"Count": len(violations)}, len(violations)))
	for _, v := range violations {
		if v.Field != "" {
			fmt.Printf("  %s: %s\n", v.Field, v.Message)
		} else {
			fmt.Printf("  %s\n", v.Message)
		}
	}
	return &plugerr.ManifestInvalidError{Violations: violations}
}
