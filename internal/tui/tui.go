// internal/tui/tui.go
// Package tui provides the interactive search interface of ragview.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/mwiater/ragview/internal/appconfig"
	"github.com/mwiater/ragview/internal/search"
	"github.com/mwiater/ragview/internal/session"
	"github.com/mwiater/ragview/internal/stream"
)

// topKChoices are the result counts offered by the options badge.
var topKChoices = []int{5, 10, 20, 50}

// temperatureStep is the increment applied by ctrl+t.
const temperatureStep = 0.1

// model is the main application model for the Bubble Tea UI.
type model struct {
	ctx              context.Context
	config           *appconfig.Config
	sess             *session.Session
	relay            *relay
	metrics          bool
	opts             search.Options
	input            textinput.Model
	spinner          spinner.Model
	viewport         viewport.Model
	renderer         *glamour.TermRenderer
	rendererWidth    int
	query            string
	queryID          uint64
	results          []search.Result
	isLoading        bool
	cancelled        bool
	err              error
	width, height    int
	requestStartTime time.Time
}

// initialModel creates and initializes a new model with default values.
func initialModel(ctx context.Context, cfg *appconfig.Config, sess *session.Session, r *relay, metricsOn bool) *model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	ti := textinput.New()
	ti.Placeholder = "Search the archive..."
	ti.Prompt = "Search: "
	ti.CharLimit = 500
	ti.Focus()

	return &model{
		ctx:      ctx,
		config:   cfg,
		sess:     sess,
		relay:    r,
		metrics:  metricsOn,
		opts:     cfg.SearchOptions(),
		input:    ti,
		spinner:  s,
		viewport: viewport.New(100, 5),
	}
}

// resultsMsg carries the ranked results of query id.
type resultsMsg struct {
	id      uint64
	results []search.Result
}

// tokenMsg reports that query id received a summary delta.
type tokenMsg struct{ id uint64 }

// completeMsg is sent when query id finished streaming.
type completeMsg struct{ id uint64 }

// errMsg is sent when query id failed.
type errMsg struct {
	id  uint64
	err error
}

// revealMsg is sent when the visible summary prefix changed.
type revealMsg struct{}

// tickMsg is a message sent at regular intervals to refresh the elapsed timer.
type tickMsg time.Time

// tickCmd creates a Bubble Tea command that sends a tickMsg at a regular interval.
func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*100, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// nextTopK returns the choice following current, wrapping around.
func nextTopK(current int) int {
	for i, k := range topKChoices {
		if k == current {
			return topKChoices[(i+1)%len(topKChoices)]
		}
	}
	return topKChoices[0]
}

// nextTemperature steps t up by one tenth, wrapping from 1.0 back to 0.0.
func nextTemperature(t float64) float64 {
	next := float64(int((t+temperatureStep)*10+0.5)) / 10
	if next > 1.0 {
		return 0
	}
	return next
}

// Init initializes the Bubble Tea model.
func (m *model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

// submit starts a search for query, superseding any open one. Callbacks
// reach Update through the relay, tagged with this submit's id.
func (m *model) submit(query string) tea.Cmd {
	m.queryID++
	id := m.queryID
	m.query = query
	m.results = nil
	m.err = nil
	m.cancelled = false
	m.isLoading = true
	m.requestStartTime = time.Now()

	post := m.relay.Post
	m.sess.Submit(m.ctx, search.NewRequest(query, m.opts), stream.Callbacks{
		OnResults:  func(results []search.Result) { post(resultsMsg{id: id, results: results}) },
		OnToken:    func(string) { post(tokenMsg{id: id}) },
		OnComplete: func() { post(completeMsg{id: id}) },
		OnError:    func(err error) { post(errMsg{id: id, err: err}) },
	})

	m.refresh()
	m.viewport.GotoTop()
	return tea.Batch(m.spinner.Tick, tickCmd())
}

// busy reports whether the spinner should run.
func (m *model) busy() bool {
	return m.isLoading || (m.queryID > 0 && !m.cancelled && m.err == nil && m.sess.Revealing())
}

// Update is the central update function for the Bubble Tea model.
func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "esc":
			if m.isLoading {
				m.sess.Cancel()
				m.isLoading = false
				m.cancelled = true
				m.refresh()
			}
			return m, nil
		case "tab":
			m.opts.TopK = nextTopK(m.opts.TopK)
			return m, nil
		case "ctrl+t":
			m.opts.Temperature = nextTemperature(m.opts.Temperature)
			return m, nil
		case "pgup":
			m.viewport.ViewUp()
			return m, nil
		case "pgdown":
			m.viewport.ViewDown()
			return m, nil
		case "enter":
			query := strings.TrimSpace(m.input.Value())
			if query == "" {
				return m, nil
			}
			return m, m.submit(query)
		}

	case tea.MouseMsg:
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case resultsMsg:
		if msg.id != m.queryID {
			return m, nil
		}
		m.results = msg.results
		m.refresh()
		return m, nil

	case tokenMsg:
		return m, nil

	case completeMsg:
		if msg.id != m.queryID {
			return m, nil
		}
		m.isLoading = false
		m.refresh()
		return m, nil

	case errMsg:
		if msg.id != m.queryID {
			return m, nil
		}
		m.isLoading = false
		m.err = msg.err
		m.refresh()
		return m, nil

	case revealMsg:
		m.refresh()
		return m, nil

	case tickMsg:
		if m.busy() {
			return m, tickCmd()
		}
		return m, nil

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// resize lays out the widgets for a new terminal size.
func (m *model) resize(width, height int) {
	m.width, m.height = width, height
	m.input.Width = width - len(m.input.Prompt) - 2
	headerHeight := 4
	footerHeight := 2
	m.viewport.Width = width
	m.viewport.Height = max(height-headerHeight-footerHeight, 1)

	wrap := width - 4
	if wrap != m.rendererWidth {
		r, err := newRenderer(wrap)
		if err != nil {
			m.renderer = nil
		} else {
			m.renderer = r
		}
		m.rendererWidth = wrap
	}
	m.refresh()
}

// refresh rebuilds the viewport content from the session and the last results.
func (m *model) refresh() {
	width := m.viewport.Width
	var sections []string

	if m.query != "" {
		sections = append(sections, sectionStyle.Render("Summary"))
		revealing := m.sess.Revealing() && !m.cancelled && m.err == nil
		if summary := renderSummary(m.renderer, m.sess.Visible(), revealing, width-4); summary != "" {
			sections = append(sections, summary)
		}
	}
	if m.err != nil {
		sections = append(sections, errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	}
	if len(m.results) > 0 {
		sections = append(sections, sectionStyle.Render(fmt.Sprintf("Results (%d)", len(m.results))))
		sections = append(sections, renderResults(m.results, width))
	} else if m.query != "" && !m.isLoading && m.err == nil && !m.cancelled {
		sections = append(sections, subtleStyle.Render("No results."))
	}

	m.viewport.SetContent(strings.Join(sections, "\n\n"))
}

// View renders the application's UI based on the current state of the model.
func (m *model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var router *stream.Router
	if q := m.sess.Current(); q != nil {
		router = q.Router
	}
	status := deriveStatus(router)
	if m.cancelled {
		status = statusCancelled
	} else if m.err != nil {
		status = statusFailed
	}

	header := lipgloss.JoinHorizontal(lipgloss.Top,
		headerStyle.Render("ragview"),
		renderOptionsBadge(m.opts),
		renderMetricsBadge(m.metrics),
		renderStatusBadge(status),
	)

	var footer string
	if m.busy() {
		timer := fmt.Sprintf("%.1f", time.Since(m.requestStartTime).Seconds())
		footer = fmt.Sprintf("%s %ss", m.spinner.View(), timer)
	} else {
		footer = subtleStyle.Render("enter: search  tab: top-k  ctrl+t: temperature  esc: cancel  ctrl+c: quit")
	}

	return strings.Join([]string{header, m.input.View(), m.viewport.View(), footer}, "\n")
}

// Run starts the interactive search UI and blocks until the user quits.
func Run(ctx context.Context, cfg *appconfig.Config, searcher stream.Searcher, logger *zap.Logger) error {
	if cfg == nil {
		return errors.New("configuration is not loaded")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := newRelay()
	sess := session.New(searcher, cfg.CharDelay(), func(int) { r.Post(revealMsg{}) }, logger)
	defer sess.Close()

	m := initialModel(ctx, cfg, sess, r, metricsEnabled(searcher))
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	r.Start(p)
	defer r.Stop()

	logger.Info("starting search UI", zap.String("endpoint", cfg.Endpoint()))
	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("running search UI: %w", err)
	}
	return nil
}
