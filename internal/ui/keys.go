package ui

import "github.com/charmbracelet/bubbles/key"

// KeyMap holds the list bindings.
type KeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Top     key.Binding
	Bottom  key.Binding
	Refresh key.Binding
	Retry   key.Binding
	Search  key.Binding
	Country key.Binding
	Source  key.Binding
	Preset  key.Binding
	Debug   key.Binding
	Quit    key.Binding
}

// DefaultKeyMap returns the default bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up:      key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k", "up")),
		Down:    key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j", "down")),
		Top:     key.NewBinding(key.WithKeys("g", "home"), key.WithHelp("g", "top")),
		Bottom:  key.NewBinding(key.WithKeys("G", "end"), key.WithHelp("G", "bottom")),
		Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		Retry:   key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "retry")),
		Search:  key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
		Country: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "country")),
		Source:  key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "source")),
		Preset:  key.NewBinding(key.WithKeys("1", "2", "3", "4"), key.WithHelp("1-4", "presets")),
		Debug:   key.NewBinding(key.WithKeys("D"), key.WithHelp("D", "debug")),
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}
