package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var infoCmd = &cobra.Command{
	Use:   "info <package> [version]",
	Short: "Show a package and its release notes",
	Long: `Shows a package's definition, installed state and the release notes
of the requested version, or the latest one. On a terminal the notes are
rendered as Markdown.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		version := ""
		if len(args) == 2 {
			version = args[1]
		}
		return cli.info(cmd.Context(), args[0], version)
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func (a *app) info(ctx context.Context, name, version string) error {
	doc, err := a.infoMarkdown(ctx, name, version)
	if err != nil {
		return err
	}
	if !a.interactive {
		_, err := fmt.Fprint(a.out, doc)
		return err
	}

	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = min(w, 120)
	}
	renderer, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(width))
	if err != nil {
		return err
	}
	out, err := renderer.Render(doc)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(a.out, out)
	return err
}

// infoMarkdown describes a package as a Markdown document.
func (a *app) infoMarkdown(ctx context.Context, name, version string) (string, error) {
	inst, err := a.installer()
	if err != nil {
		return "", err
	}
	def, err := inst.Definition(name)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", def.Name)
	if def.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", def.Description)
	}
	fmt.Fprintf(&b, "- **Package:** `%s`\n", def.ID)
	sources := make([]string, len(def.Sources))
	for i, src := range def.Sources {
		sources[i] = src.Type()
	}
	fmt.Fprintf(&b, "- **Sources:** %s\n", strings.Join(sources, ", "))

	if m, err := inst.Manifest(); err == nil {
		if pkg, ok := m.Get(name); ok {
			fmt.Fprintf(&b, "- **Installed:** %s (%d %s)\n", versionName(pkg.Version),
				len(pkg.Files), plural(len(pkg.Files), "file", "files"))
		} else {
			b.WriteString("- **Installed:** no\n")
		}
	}

	info, err := inst.VersionInfo(ctx, name, version)
	if err != nil {
		a.warnf("could not resolve version %s: %v", versionLabel(version), err)
		return b.String(), nil
	}
	fmt.Fprintf(&b, "- **Version:** %s\n", versionName(info.Version))
	if len(info.Options) > 0 {
		fmt.Fprintf(&b, "- **Options:** %s\n", strings.Join(info.Options, ", "))
	}
	if notes := strings.TrimSpace(info.Description); notes != "" {
		fmt.Fprintf(&b, "\n## Release notes\n\n%s\n", notes)
	}
	return b.String(), nil
}

func versionLabel(version string) string {
	if version == "" {
		return "latest"
	}
	return version
}
