package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nao1215/dorkscan/internal/catalog"
	"github.com/nao1215/dorkscan/internal/config"
	"github.com/spf13/cobra"
)

//go:embed templates/dorkscan.yaml templates/dorks.yaml
var templates embed.FS

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a starter configuration file and dork catalog",
		Long: `Initialize writes a commented .dorkscan configuration file and a starter
dorks.yaml catalog.

Examples:
  # Create .dorkscan and dorks.yaml in the current directory
  dorkscan init

  # Install both into the XDG config directory (~/.config/dorkscan)
  dorkscan init --global

  # Force overwrite existing files
  dorkscan init -f`,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
		"Output file path for the configuration")
	cmd.Flags().String("dorks-output", catalog.DefaultFile,
		"Output file path for the dork catalog")
	cmd.Flags().Bool("global", false,
		"Write config.yaml and dorks.yaml into the XDG config directory")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing files")

	return cmd
}

func runInitCmd(cmd *cobra.Command, _ []string) error {
	configPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	dorksPath, err := cmd.Flags().GetString("dorks-output")
	if err != nil {
		return err
	}
	global, err := cmd.Flags().GetBool("global")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if global {
		configPath = filepath.Join(config.XDGConfigDir(), "config.yaml")
		dorksPath = filepath.Join(config.XDGConfigDir(), catalog.DefaultFile)
	}

	files := []struct {
		template string
		path     string
	}{
		{"templates/dorkscan.yaml", configPath},
		{"templates/dorks.yaml", dorksPath},
	}

	// Check everything first so a refusal leaves nothing half-written.
	if !force {
		for _, f := range files {
			if _, err := os.Stat(f.path); err == nil {
				return fmt.Errorf("file already exists: %s (use -f to overwrite)", f.path)
			}
		}
	}

	out := cmd.OutOrStdout()
	for _, f := range files {
		if err := writeTemplate(f.template, f.path); err != nil {
			return err
		}
		fmt.Fprintf(out, "Created %s\n", f.path)
	}

	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  - add your Custom Search API key and engine id, or leave them out to use DuckDuckGo")
	fmt.Fprintln(out, "  - review the dork categories in", dorksPath)
	fmt.Fprintln(out, "  - run: dorkscan scan -t example.com -c login_panels")

	return nil
}

func writeTemplate(name, path string) error {
	content, err := templates.ReadFile(name)
	if err != nil {
		return fmt.Errorf("failed to read template %s: %w", name, err)
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := os.WriteFile(path, content, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
