package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a landform project",
	Long: `Creates the .landform directory, initializes the state store, and
writes a starter configuration when none exists.`,
	RunE: runInit,
}

const starterPklProject = `amends "pkl:Project"
`

const starterMainPkl = `// Landform configuration. Run 'landform plan' to preview changes.

class Resource {
  kind: String
  name: String
  enabled: Boolean? = null
  dependsOn: Listing<String> = new {}
  count: Int = 0
  forEach: Mapping<String, String> = new {}
  attrs: Mapping<String, Any> = new {}
}

resources: Listing<Resource> = new {
  new {
    kind = "null:Resource"
    name = "hello"
    attrs {
      ["message"] = "landform is ready"
    }
  }
}

outputs: Mapping<String, Any> = new {}
`

func runInit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	dir, _, err := resolveEntryPoint(rootChdir, nil)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Join(dir, ".landform"), 0755); err != nil {
		return fmt.Errorf("failed to create .landform directory: %w", err)
	}

	// Opening the store creates the database and runs migrations.
	store, err := openStore(ctx, dir)
	if err != nil {
		return err
	}
	if err := store.Close(); err != nil {
		return fmt.Errorf("failed to close state store: %w", err)
	}
	fmt.Fprintln(out, "Initialized state store.")

	pklProject := filepath.Join(dir, "PklProject")
	if _, err := os.Stat(pklProject); os.IsNotExist(err) {
		if err := os.WriteFile(pklProject, []byte(starterPklProject), 0644); err != nil {
			return fmt.Errorf("failed to create PklProject: %w", err)
		}
		fmt.Fprintln(out, "Created PklProject")
	}

	mainPkl := filepath.Join(dir, "main.pkl")
	if _, err := os.Stat(mainPkl); os.IsNotExist(err) {
		if err := os.WriteFile(mainPkl, []byte(starterMainPkl), 0644); err != nil {
			return fmt.Errorf("failed to create main.pkl: %w", err)
		}
		fmt.Fprintln(out, "Created main.pkl")
	}

	fmt.Fprintln(out, "\nLandform initialized.")
	fmt.Fprintln(out, "Next steps:")
	fmt.Fprintln(out, "  1. Edit main.pkl to declare your resources")
	fmt.Fprintln(out, "  2. Run 'landform plan' to see what would change")
	fmt.Fprintln(out, "  3. Run 'landform apply' to make it so")
	return nil
}
