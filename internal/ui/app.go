package ui

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/abelbrown/newsfeed/internal/cache"
	"github.com/abelbrown/newsfeed/internal/classify"
	"github.com/abelbrown/newsfeed/internal/diff"
	"github.com/abelbrown/newsfeed/internal/model"
	"github.com/abelbrown/newsfeed/internal/otel"
	"github.com/abelbrown/newsfeed/internal/paging"
	"github.com/abelbrown/newsfeed/internal/router"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// Feed is the view's handle on one query. *cache.Observer implements it.
type Feed interface {
	Query() model.Query
	Next(ctx context.Context) (cache.Update, error)
	Access(index int)
	Append()
	Retry()
	Refresh()
}

// Deps are the collaborators the view needs.
type Deps struct {
	// Select attaches to the feed for a selection.
	Select func(router.Selection) (Feed, error)
	// Classifier labels article titles. Optional.
	Classifier classify.Classifier
	// Ring holds recent events for the debug overlay. Optional.
	Ring *otel.RingBuffer
	// Initial is selected on start.
	Initial router.Selection
	// Now overrides the clock for tests.
	Now func() time.Time
}

// App is the main Bubble Tea model.
type App struct {
	deps   Deps
	keys   KeyMap
	ctx    context.Context
	cancel context.CancelFunc

	feed   Feed
	snap   *paging.Snapshot
	items  []model.Article
	labels map[string]classify.Label
	cursor int

	width  int
	height int

	spinner   spinner.Model
	input     textinput.Model
	prompt    router.Intent
	prompting bool
	showDebug bool
	selectErr error
}

// NewApp creates the view. Call Init through tea.NewProgram to start it.
func NewApp(deps Deps) *App {
	ctx, cancel := context.WithCancel(context.Background())

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	in := textinput.New()
	in.CharLimit = 120

	if deps.Now == nil {
		deps.Now = time.Now
	}

	return &App{
		deps:    deps,
		keys:    DefaultKeyMap(),
		ctx:     ctx,
		cancel:  cancel,
		labels:  make(map[string]classify.Label),
		spinner: sp,
		input:   in,
	}
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return tea.Batch(a.spinner.Tick, a.selectCmd(a.deps.Initial))
}

// Items returns the articles currently shown.
func (a *App) Items() []model.Article { return a.items }

// Cursor returns the selected row.
func (a *App) Cursor() int { return a.cursor }

func (a *App) selectCmd(sel router.Selection) tea.Cmd {
	return func() tea.Msg {
		f, err := a.deps.Select(sel)
		return FeedSelected{Feed: f, Err: err}
	}
}

func waitForUpdate(ctx context.Context, f Feed) tea.Cmd {
	return func() tea.Msg {
		u, err := f.Next(ctx)
		if err != nil {
			return FeedEnded{Feed: f, Err: err}
		}
		return FeedUpdated{Feed: f, Update: u}
	}
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.input.Width = msg.Width - 20
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case FeedSelected:
		if msg.Err != nil {
			a.selectErr = msg.Err
			return a, nil
		}
		a.selectErr = nil
		if msg.Feed == a.feed {
			return a, nil
		}
		a.feed = msg.Feed
		a.snap = nil
		a.items = nil
		a.labels = make(map[string]classify.Label)
		a.cursor = 0
		return a, waitForUpdate(a.ctx, a.feed)

	case FeedUpdated:
		if msg.Feed != a.feed {
			return a, nil
		}
		a.apply(msg.Update)
		return a, waitForUpdate(a.ctx, a.feed)

	case FeedEnded:
		if msg.Feed == a.feed && !errors.Is(msg.Err, cache.ErrClosed) && !errors.Is(msg.Err, context.Canceled) {
			a.selectErr = msg.Err
		}
		return a, nil

	case tea.KeyMsg:
		if a.prompting {
			return a.updatePrompt(msg)
		}
		return a.handleKey(msg)
	}
	return a, nil
}

// apply brings the local list up to date with one update. The ops are
// relative to the previous delivery; if they do not reproduce the snapshot
// item for item the list is replaced wholesale.
func (a *App) apply(u cache.Update) {
	a.snap = u.Snapshot

	items, err := diff.Apply(a.items, u.Ops)
	if err != nil || !sameItems(items, u.Snapshot.Items) {
		items = slices.Clone(u.Snapshot.Items)
		for _, it := range items {
			a.label(it)
		}
	} else {
		for _, op := range u.Ops {
			if op.Kind == diff.Insert || op.Kind == diff.Update {
				a.label(op.Item)
			}
		}
	}
	a.items = items

	if a.cursor >= len(a.items) {
		a.cursor = max(len(a.items)-1, 0)
	}
}

// sameItems reports whether a and b hold the same articles in the same order.
func sameItems(a, b []model.Article) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Identity() != b[i].Identity() || !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func (a *App) label(it model.Article) {
	if a.deps.Classifier == nil {
		return
	}
	a.labels[it.Identity()] = a.deps.Classifier.Classify(it.Title + " " + it.Description)
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, a.keys.Quit):
		a.cancel()
		return a, tea.Quit

	case key.Matches(msg, a.keys.Down):
		if a.cursor < len(a.items)-1 {
			a.cursor++
		}
		a.access()

	case key.Matches(msg, a.keys.Up):
		if a.cursor > 0 {
			a.cursor--
		}
		a.access()

	case key.Matches(msg, a.keys.Top):
		a.cursor = 0
		a.access()

	case key.Matches(msg, a.keys.Bottom):
		a.cursor = max(len(a.items)-1, 0)
		a.access()

	case key.Matches(msg, a.keys.Refresh):
		if a.feed != nil {
			a.feed.Refresh()
		}

	case key.Matches(msg, a.keys.Retry):
		if a.feed != nil {
			a.feed.Retry()
		}

	case key.Matches(msg, a.keys.Debug):
		a.showDebug = !a.showDebug

	case key.Matches(msg, a.keys.Search):
		return a, a.startPrompt(router.IntentSearch)

	case key.Matches(msg, a.keys.Country):
		return a, a.startPrompt(router.IntentCountry)

	case key.Matches(msg, a.keys.Source):
		return a, a.startPrompt(router.IntentSource)

	case key.Matches(msg, a.keys.Preset):
		n := int(msg.String()[0] - '1')
		if n >= 0 && n < len(router.Presets) {
			return a, a.selectCmd(router.Presets[n])
		}
	}
	return a, nil
}

func (a *App) access() {
	if a.feed != nil && len(a.items) > 0 {
		a.feed.Access(a.cursor)
	}
}

func (a *App) startPrompt(intent router.Intent) tea.Cmd {
	a.prompting = true
	a.prompt = intent
	a.input.SetValue("")
	a.input.Prompt = intent.String() + ": "
	return a.input.Focus()
}

func (a *App) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		a.prompting = false
		a.input.Blur()
		return a, nil
	case tea.KeyEnter:
		a.prompting = false
		a.input.Blur()
		v := strings.TrimSpace(a.input.Value())
		if v == "" {
			return a, nil
		}
		sel := router.Selection{Intent: a.prompt}
		switch a.prompt {
		case router.IntentSearch:
			sel.Term = v
		case router.IntentCountry:
			sel.Country = v
		case router.IntentSource:
			sel.Source = v
		}
		return a, a.selectCmd(sel)
	}
	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

// View implements tea.Model.
func (a *App) View() string {
	if a.width == 0 {
		return "Loading..."
	}

	header := a.renderHeader()
	footer := a.renderFooter()
	errBar := a.renderError()

	used := 2
	if errBar != "" {
		used++
	}
	var body string
	if a.showDebug {
		body = debugOverlay(a.deps.Ring, a.snap, a.width, a.deps.Now())
	} else {
		body = RenderStream(StreamView{
			Items:  a.items,
			Labels: a.labels,
			Cursor: a.cursor,
			Width:  a.width,
			Height: a.height - used,
			Now:    a.deps.Now(),
		})
	}

	parts := []string{header, body}
	if errBar != "" {
		parts = append(parts, errBar)
	}
	parts = append(parts, footer)
	return strings.Join(parts, "\n")
}

func (a *App) renderHeader() string {
	if a.prompting {
		return PromptBar.Width(a.width).Render(a.input.View())
	}
	if a.feed == nil {
		return StatusBar.Width(a.width).Render(a.spinner.View() + " selecting feed")
	}
	status := "idle"
	count := 0
	if a.snap != nil {
		status = a.snap.Status.String()
		count = len(a.snap.Items)
	}
	line := fmt.Sprintf("%s  %d articles  %s", a.feed.Query(), count, status)
	if a.snap == nil || a.snap.Loading() {
		line = a.spinner.View() + " " + line
	}
	return StatusBar.Width(a.width).Render(line)
}

func (a *App) renderError() string {
	if a.selectErr != nil {
		return ErrorStyle.Render("Error: " + a.selectErr.Error())
	}
	if a.snap == nil || a.snap.Status.Phase != paging.Failed {
		return ""
	}
	st := a.snap.Status
	if st.Direction == paging.Initial {
		return ErrorStyle.Render(fmt.Sprintf("Could not load %s: %v (t to retry)", a.snap.Query, st.Err))
	}
	return ErrorStyle.Render(fmt.Sprintf("Loading more failed: %v (t to retry)", st.Err))
}

func (a *App) renderFooter() string {
	hints := []key.Binding{a.keys.Down, a.keys.Up, a.keys.Refresh, a.keys.Retry,
		a.keys.Search, a.keys.Country, a.keys.Source, a.keys.Preset, a.keys.Debug, a.keys.Quit}
	var parts []string
	for _, h := range hints {
		parts = append(parts, StatusBarKey.Render(h.Help().Key)+" "+StatusBarText.Render(h.Help().Desc))
	}
	line := strings.Join(parts, "  ")
	if s := debugStatusBar(a.deps.Ring); s != "" && a.showDebug {
		line += "  " + StatusBarText.Render(s)
	}
	return StatusBar.Width(a.width).Render(line)
}
