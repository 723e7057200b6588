package ui

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/lbx/internal/shared"
	"github.com/desertthunder/lbx/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	LoadingView ViewState = iota
	ProviderView
	ProgressView
	ResultView
)

// ProviderSource lists the streaming services available in a region.
type ProviderSource interface {
	ProvidersForRegion(ctx context.Context, region string) ([]string, error)
}

// Resulter serves results requests. [tasks.WatchlistEngine] implements it.
type Resulter interface {
	Results(ctx context.Context, req tasks.Request) (*tasks.Result, error)
}

// Options configures a [Model].
//
// With a nil Engine the model only picks providers and quits on confirm.
type Options struct {
	Username string
	Region   string
	Saved    []string
	Refresh  bool
	Catalog  ProviderSource
	Engine   Resulter
}

// Model represents the TUI application state.
type Model struct {
	ctx       context.Context
	opts      Options
	view      ViewState
	width     int
	height    int
	providers list.Model
	films     list.Model
	run       *resultsRun
	progress  tasks.ProgressUpdate
	result    *tasks.Result
	confirmed bool
	err       error
	help      help.Model
	keys      keyMap
}

// resultsRun carries one background results request. result and err are written before ch closes.
type resultsRun struct {
	ch     chan tasks.ProgressUpdate
	result *tasks.Result
	err    error
}

// NewModel creates a new TUI model with the provided dependencies.
func NewModel(ctx context.Context, opts Options) *Model {
	return &Model{
		ctx:       ctx,
		opts:      opts,
		view:      LoadingView,
		providers: list.New(nil, list.NewDefaultDelegate(), 0, 0),
		films:     list.New(nil, list.NewDefaultDelegate(), 0, 0),
		help:      help.New(),
		keys:      newKeyMap(),
	}
}

// Init initializes the TUI by fetching the providers of the region.
func (m *Model) Init() tea.Cmd {
	return m.fetchProviders()
}

// Selection returns the checked provider names, sorted.
func (m *Model) Selection() []string {
	var names []string
	for _, item := range m.providers.Items() {
		if p, ok := item.(providerItem); ok && p.selected {
			names = append(names, p.name)
		}
	}
	slices.Sort(names)
	return names
}

// Confirmed reports whether the user confirmed a selection.
func (m *Model) Confirmed() bool { return m.confirmed }

// Result returns the last results request outcome.
func (m *Model) Result() (*tasks.Result, error) { return m.result, m.err }

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.providers.SetSize(msg.Width-4, msg.Height-6)
		m.films.SetSize(msg.Width-4, msg.Height-8)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case LoadingView, ProgressView:
			if key.Matches(msg, m.keys.quit) {
				return m, tea.Quit
			}
			return m, nil
		case ProviderView:
			return m.handleProviderKeys(msg)
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateLists(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgProvidersFetched:
		data := msg.data.(providersFetched)
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		m.setProviders(data.available)
		m.view = ProviderView
		return m, nil

	case MsgProgressUpdate:
		m.progress = msg.data.(tasks.ProgressUpdate)
		return m, m.waitForProgress()

	case MsgResultsReady:
		data := msg.data.(resultsReady)
		m.run = nil
		m.result = data.result
		m.err = data.err
		if data.result != nil {
			items := make([]list.Item, len(data.result.Films))
			for i, film := range data.result.Films {
				items[i] = filmItem{film: film}
			}
			m.films = list.New(items, list.NewDefaultDelegate(), m.width-4, m.height-8)
			m.films.Title = fmt.Sprintf("%s • %s • %d films", m.opts.Username, m.opts.Region, len(items))
		}
		m.view = ResultView
		return m, nil
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil && m.view != ResultView {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress q to quit", m.err))
	}

	switch m.view {
	case LoadingView:
		return styles.help.Render(fmt.Sprintf("Loading providers for %s...", m.opts.Region))
	case ProviderView:
		return m.renderProviders()
	case ProgressView:
		return m.renderProgress()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) setProviders(available []string) {
	saved := make(map[string]bool, len(m.opts.Saved))
	for _, name := range m.opts.Saved {
		saved[name] = true
	}

	names := slices.Clone(available)
	for _, name := range m.opts.Saved {
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}

	items := make([]list.Item, len(names))
	for i, name := range names {
		items[i] = providerItem{name: name, selected: saved[name]}
	}

	m.providers = list.New(items, list.NewDefaultDelegate(), m.width-4, m.height-6)
	m.providers.Title = fmt.Sprintf("Streaming services in %s", m.opts.Region)
}

func (m *Model) handleProviderKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.providers.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.providers, cmd = m.providers.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.toggle):
		m.toggle(m.providers.GlobalIndex())
		return m, nil
	case key.Matches(msg, m.keys.all):
		m.toggleAll()
		return m, nil
	case key.Matches(msg, m.keys.enter):
		m.confirmed = true
		if m.opts.Engine == nil {
			return m, tea.Quit
		}
		m.view = ProgressView
		m.err = nil
		return m, m.startResults()
	}

	var cmd tea.Cmd
	m.providers, cmd = m.providers.Update(msg)
	return m, cmd
}

func (m *Model) toggle(index int) {
	items := m.providers.Items()
	if index < 0 || index >= len(items) {
		return
	}
	if p, ok := items[index].(providerItem); ok {
		p.selected = !p.selected
		m.providers.SetItem(index, p)
	}
}

// toggleAll selects every provider, or clears them all when every one is already selected.
func (m *Model) toggleAll() {
	items := m.providers.Items()
	target := !slices.ContainsFunc(items, func(it list.Item) bool {
		p, ok := it.(providerItem)
		return ok && !p.selected
	})
	for i, it := range items {
		if p, ok := it.(providerItem); ok {
			p.selected = !target
			m.providers.SetItem(i, p)
		}
	}
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.films.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.films, cmd = m.films.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.restart), key.Matches(msg, m.keys.back):
		m.view = ProviderView
		m.result = nil
		m.err = nil
		return m, nil
	}

	var cmd tea.Cmd
	m.films, cmd = m.films.Update(msg)
	return m, cmd
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case ProviderView:
		m.providers, cmd = m.providers.Update(msg)
	case ResultView:
		m.films, cmd = m.films.Update(msg)
	}
	return m, cmd
}

func (m *Model) fetchProviders() tea.Cmd {
	return func() tea.Msg {
		if m.opts.Catalog == nil {
			return providersFetchedMsg(nil, fmt.Errorf("%w: no catalog configured", shared.ErrMissingCredentials))
		}
		available, err := m.opts.Catalog.ProvidersForRegion(m.ctx, m.opts.Region)
		return providersFetchedMsg(available, err)
	}
}

func (m *Model) startResults() tea.Cmd {
	run := &resultsRun{ch: make(chan tasks.ProgressUpdate, 64)}
	m.run = run

	req := tasks.Request{
		Username:  m.opts.Username,
		Region:    m.opts.Region,
		Providers: m.Selection(),
		Refresh:   m.opts.Refresh,
		Progress:  run.ch,
	}
	if req.Providers == nil {
		req.Providers = []string{}
	}
	m.opts.Refresh = false

	go func() {
		run.result, run.err = m.opts.Engine.Results(m.ctx, req)
		close(run.ch)
	}()

	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	run := m.run
	return func() tea.Msg {
		if run == nil {
			return resultsReadyMsg(nil, errors.New("no request in flight"))
		}

		update, ok := <-run.ch
		if !ok {
			return resultsReadyMsg(run.result, run.err)
		}
		return progressUpdateMsg(update)
	}
}

func (m *Model) renderProviders() string {
	count := styles.accent.Render(fmt.Sprintf("%d selected", len(m.Selection())))
	helpKeys := []key.Binding{m.keys.toggle, m.keys.all, m.keys.enter, m.keys.quit}
	return fmt.Sprintf("%s\n%s  %s", m.providers.View(), count, m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderProgress() string {
	title := styles.title.Render(fmt.Sprintf("Fetching the watchlist of %s", m.opts.Username))

	var phase string
	switch m.progress.Phase {
	case tasks.Acquire:
		phase = "Scraping watchlist pages..."
	case tasks.Enrich:
		phase = fmt.Sprintf("Looking up films (%d/%d)", m.progress.Step, m.progress.Total)
	case tasks.Reconcile:
		phase = "Saving snapshot..."
	case tasks.Cached:
		phase = "Using saved snapshot..."
	default:
		phase = "Processing..."
	}

	return fmt.Sprintf("%s\n\n%s\n%s", title, phase, styles.help.Render(m.progress.Message))
}

func (m *Model) renderResult() string {
	helpKeys := []key.Binding{m.keys.restart, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)

	if m.result == nil {
		msg := "No result available"
		if m.err != nil {
			msg = fmt.Sprintf("Request failed: %v", m.err)
		}
		return fmt.Sprintf("%s\n\n%s", styles.err.Render(msg), helpView)
	}

	status := styles.ok.Render("✓ Up to date")
	if m.result.Refreshed {
		status = styles.ok.Render(fmt.Sprintf("✓ Refreshed (%d added, %d updated, %d removed)",
			m.result.Stats.Inserted, m.result.Stats.Updated, m.result.Stats.Deleted))
	}
	if m.err != nil {
		status = styles.err.Render(fmt.Sprintf("Results not saved: %v", m.err))
	}

	return fmt.Sprintf("%s\n%s\n\n%s", m.films.View(), status, helpView)
}
