package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool
	var example bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new weft project",
		Long: `Initialize a new weft project with default directory structure and configuration.

This creates:
  - scripts/ directory for Starlark scripts
  - weft.yaml configuration file
  - .gitignore covering the local state directory

Use --example to create a working demo project: a static call chain
(report -> billing.invoice -> format, greet) plus a cyclic pair
(billing.reminder <-> billing.escalate) that links through the registry.`,
		Example: `  # Initialize in current directory
  weft init

  # Initialize with a working example project
  weft init --example

  # Initialize in a new directory
  weft init my-project --example

  # Force overwrite existing config
  weft init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			if example {
				return runInitExample(cmd.OutOrStdout(), dir, force)
			}
			return runInit(cmd.OutOrStdout(), dir, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")
	cmd.Flags().BoolVar(&example, "example", false, "Create a working example project with a call graph")

	return cmd
}

// prepareProjectDir creates dir if needed and refuses to clobber an existing
// weft.yaml unless force is set.
func prepareProjectDir(dir string, force bool) error {
	if dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	configPath := filepath.Join(dir, "weft.yaml")
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("weft.yaml already exists. Use --force to overwrite")
	}
	return nil
}

func runInit(out io.Writer, dir string, force bool) error {
	if err := prepareProjectDir(dir, force); err != nil {
		return err
	}

	if err := copyTemplate("starter", dir, force); err != nil {
		return fmt.Errorf("failed to initialize project: %w", err)
	}

	files, _ := listTemplateFiles("starter")
	for _, f := range files {
		fmt.Fprintf(out, "  created %s\n", f)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "weft project initialized!")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Next steps:")
	fmt.Fprintln(out, "  1. Add scripts to scripts/")
	fmt.Fprintln(out, "  2. Run 'weft build' to link and publish them")
	fmt.Fprintln(out, "  3. Run 'weft invoke greet -- you' to execute the starter script")
	fmt.Fprintln(out, "  4. Run 'weft list' to see all scripts and their calls")

	return nil
}

func runInitExample(out io.Writer, dir string, force bool) error {
	if err := prepareProjectDir(dir, force); err != nil {
		return err
	}

	if err := copyTemplate("example", dir, force); err != nil {
		return fmt.Errorf("failed to initialize project: %w", err)
	}

	files, _ := listTemplateFiles("example")
	groups := groupTemplateFiles(files)

	fmt.Fprintln(out, "Configuration:")
	for _, f := range groups["config"] {
		fmt.Fprintf(out, "  created %s\n", f)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Scripts:")
	for _, f := range groups["scripts"] {
		fmt.Fprintf(out, "  created %s\n", f)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "weft example project initialized!")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Next steps:")
	fmt.Fprintln(out, "  weft build                 Link the scripts and publish the batch")
	fmt.Fprintln(out, "  weft graph                 Show the call graph and its components")
	fmt.Fprintln(out, "  weft invoke report         Run the static chain")
	fmt.Fprintln(out, "  weft invoke billing.reminder -- 3   Run the cyclic pair")

	return nil
}
