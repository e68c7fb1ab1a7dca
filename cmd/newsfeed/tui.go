package main

import (
	"fmt"

	"github.com/abelbrown/newsfeed/internal/classify"
	"github.com/abelbrown/newsfeed/internal/router"
	"github.com/abelbrown/newsfeed/internal/ui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	eng, err := newEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	app := ui.NewApp(ui.Deps{
		Select: func(sel router.Selection) (ui.Feed, error) {
			o, err := eng.router.Select(sel)
			if err != nil {
				return nil, err
			}
			return o, nil
		},
		Classifier: classify.NewLexicon(),
		Ring:       eng.ring,
		Initial:    router.Selection{Intent: router.IntentDefault},
	})

	if _, err := tea.NewProgram(app, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("running ui: %w", err)
	}
	return nil
}
