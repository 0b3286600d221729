package main

import (
	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"go-live-ide/internal/config"
)

func newRootCmd() *cobra.Command {
	var cfgPath string

	cmd := &cobra.Command{
		Use:   "go-live-ide",
		Short: "A browser mini-IDE with live previews.",
		Long: heredoc.Doc(`
			go-live-ide serves a small editor in the browser with a live preview
			pane. HTML, CSS, JavaScript and JSON are previewed as documents,
			Markdown is rendered to HTML and typst sources are compiled with
			the typst CLI.

			Settings come from .liveide.yml and LIVEIDE_* environment variables.
		`),
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", config.FileName, "config file")

	cmd.AddCommand(newServeCmd(&cfgPath), newConfigCmd(&cfgPath))
	return cmd
}
