package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/packman/pkg/packman/definition"
	"github.com/jamesainslie/packman/pkg/packman/output"
)

var lintCmd = &cobra.Command{
	Use:   "lint [file...]",
	Short: "Check package definitions",
	Long: `Validates package definition files against the definition schema and
decodes their sources, steps and conditions. With no arguments every
definition in the definitions directory is checked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.lint(args)
	},
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the package definition JSON schema",
	Long: `Prints the JSON schema package definitions are validated against,
for use with editors that support schema-driven completion.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := cli.out.Write(definition.Schema())
		return err
	},
}

func init() {
	rootCmd.AddCommand(lintCmd)
	rootCmd.AddCommand(schemaCmd)
}

func (a *app) loader() *definition.Loader {
	return definition.NewLoader(a.cfg.DefinitionsDir, installerConfig(a.cfg).Sources)
}

func (a *app) lint(files []string) error {
	type target struct{ label, path string }
	var targets []target

	loader := a.loader()
	if len(files) == 0 {
		names, err := loader.Names()
		if err != nil {
			return err
		}
		if len(names) == 0 {
			a.printf("No package definitions in %s.", relPath(loader.Dir()))
			return nil
		}
		for _, name := range names {
			path, err := loader.Path(name)
			if err != nil {
				path = name
			}
			targets = append(targets, target{label: name, path: path})
		}
	} else {
		for _, f := range files {
			abs, err := filepath.Abs(f)
			if err != nil {
				return err
			}
			targets = append(targets, target{label: f, path: abs})
		}
	}

	failed := 0
	for _, t := range targets {
		l := loader
		if len(files) > 0 {
			l = definition.NewLoader(filepath.Dir(t.path), installerConfig(a.cfg).Sources)
		}
		if _, err := l.LoadFile(t.path); err != nil {
			failed++
			fmt.Fprintf(a.out, "%s %s: %v\n", output.MarkFailed, t.label, err)
			continue
		}
		a.printf("%s %s", output.MarkDone, t.label)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d %s invalid", failed, len(targets), plural(len(targets), "definition is", "definitions are"))
	}
	return nil
}
