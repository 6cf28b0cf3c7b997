package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/kxrobot/kxr/pkg/channel"
	"github.com/kxrobot/kxr/pkg/config"
	"github.com/kxrobot/kxr/pkg/firmware"
	"github.com/kxrobot/kxr/pkg/kinematics"
	"github.com/kxrobot/kxr/pkg/robot"
	"github.com/kxrobot/kxr/pkg/teleop"
	"github.com/kxrobot/kxr/pkg/tracking"
)

type TeleoperateCommand struct {
	Hz        int    `long:"hz" description:"Control loop frequency (default from config)"`
	Recording string `long:"replay" description:"Replay tracking frames from a JSON-lines file instead of the leader arm"`
	Loop      bool   `long:"loop" description:"Loop the replayed recording"`
	Record    string `long:"record" description:"Record every tracking frame to a JSON-lines file for --replay"`
	LogFile   string `long:"log-file" default:"kxr.log" description:"Write the controller log here while the dashboard runs"`
}

const (
	headerHeight = 2 // title + blank line
	legendHeight = 2 // legend row + blank
	tableHeight  = 6 // channel table
	footerHeight = 7 // log box height
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border
)

type jointSeries struct {
	name  string
	color string
	value func(kinematics.JointAngles) float64
}

var joints = []jointSeries{
	{"theta0", "196", func(a kinematics.JointAngles) float64 { return a.Theta0 }}, // red
	{"alpha", "208", func(a kinematics.JointAngles) float64 { return a.Alpha }},   // orange
	{"beta", "46", func(a kinematics.JointAngles) float64 { return a.Beta }},      // green
	{"theta", "51", func(a kinematics.JointAngles) float64 { return a.Theta }},    // cyan
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

type teleopModel struct {
	ctrl       *teleop.Controller
	chart      *streamlinechart.Model
	width      int // terminal width
	height     int // terminal height
	logs       []string
	state      teleop.State
	selected   int
	quitting   bool
	lastAngles *kinematics.JointAngles
	input      textinput.Model // raw line for the selected channel
	prompting  bool
}

func (m *teleopModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// Messages from the controller
type stateMsg teleop.State
type logMsg string

func waitForState(ctrl *teleop.Controller) tea.Cmd {
	return func() tea.Msg {
		return stateMsg(<-ctrl.States())
	}
}

func waitForLog(ctrl *teleop.Controller) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-ctrl.Logs())
	}
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *teleopModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 16 // default size before we know terminal size
	}
	width = max(m.width-borderSize-2, 40)
	height = max(m.height-headerHeight-legendHeight-tableHeight-footerHeight-borderSize, 8)
	return width, height
}

func (m *teleopModel) resizeChart() {
	w, h := m.chartSize()
	m.chart.Resize(w, h)
}

func initialTeleopModel(ctrl *teleop.Controller) teleopModel {
	chart := streamlinechart.New(80, 16,
		streamlinechart.WithYRange(-180, 180),
	)
	for _, j := range joints {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(j.color))
		chart.SetDataSetStyles(j.name, runes.ThinLineStyle, style)
	}

	input := textinput.New()
	input.Prompt = "send › "
	input.Placeholder = "G1X300Y200Z0"
	input.CharLimit = firmware.MaxLine

	return teleopModel{
		ctrl:  ctrl,
		chart: &chart,
		input: input,
	}
}

func (m teleopModel) Init() tea.Cmd {
	return tea.Batch(
		waitForState(m.ctrl),
		waitForLog(m.ctrl),
	)
}

func (m teleopModel) selectedChannel() string {
	names := m.ctrl.Channels()
	if len(names) == 0 {
		return ""
	}
	return names[m.selected%len(names)]
}

func (m teleopModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeChart()
		return m, nil

	case tea.KeyMsg:
		if m.prompting {
			return m.updatePrompt(msg)
		}
		name := m.selectedChannel()
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "tab", "down", "j":
			m.selected++
		case "shift+tab", "up", "k":
			m.selected += len(m.ctrl.Channels()) - 1
		case "o":
			m.ctrl.Submit(teleop.Request{Channel: name, Op: teleop.OpOpen})
		case "c":
			m.ctrl.Submit(teleop.Request{Channel: name, Op: teleop.OpClose})
		case "m":
			m.ctrl.Submit(teleop.Request{Channel: name, Op: teleop.OpToggleMode})
		case "e":
			m.ctrl.Submit(teleop.Request{Channel: name, Op: teleop.OpEnable})
		case "d":
			m.ctrl.Submit(teleop.Request{Channel: name, Op: teleop.OpDisable})
		case ":":
			m.prompting = true
			return m, m.input.Focus()
		}
		return m, nil

	case stateMsg:
		m.state = teleop.State(msg)
		if m.state.SolveErr == nil && m.hasMovement(m.state.Angles) {
			// Only update chart if there's movement (freeze when idle)
			for _, j := range joints {
				m.chart.PushDataSet(j.name, j.value(m.state.Angles))
			}
			m.chart.DrawAll()
			a := m.state.Angles
			m.lastAngles = &a
		}
		return m, waitForState(m.ctrl)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.ctrl)
	}

	if m.prompting {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

// updatePrompt edits the raw line. Enter queues it for the selected channel,
// esc drops it.
func (m teleopModel) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "esc":
		m.closePrompt()
		return m, nil
	case "enter":
		if text := strings.TrimSpace(m.input.Value()); text != "" {
			m.ctrl.Submit(teleop.Request{Channel: m.selectedChannel(), Op: teleop.OpSendRaw, Text: text})
		}
		m.closePrompt()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *teleopModel) closePrompt() {
	m.prompting = false
	m.input.Blur()
	m.input.Reset()
}

func (m *teleopModel) hasMovement(a kinematics.JointAngles) bool {
	return m.lastAngles == nil || *m.lastAngles != a
}

func (m teleopModel) View() string {
	if m.quitting {
		return "Teleoperation stopped.\n"
	}

	var sb strings.Builder

	// Header
	sb.WriteString(titleStyle.Render("kxr Teleoperate"))
	sb.WriteString(fmt.Sprintf(" - %d Hz", m.ctrl.Hz()))
	sb.WriteString(statusStyle.Render(fmt.Sprintf("  cycle %d", m.state.Cycle)))
	switch {
	case !m.state.Tracked:
		sb.WriteString(warnStyle.Render("  no tracked subject"))
	case m.state.Stale:
		sb.WriteString(statusStyle.Render("  (stale)"))
	}
	sb.WriteString("\n\n")

	// Chart
	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	// Legend and simulated pose
	sb.WriteString(renderLegend())
	p := m.state.Pose
	sb.WriteString(statusStyle.Render(fmt.Sprintf("   target %.0f, %.0f, %.0f  γ %.0f°", p.X, p.Y, p.Z, p.Gamma)))
	if m.state.SolveErr != nil {
		sb.WriteString(warnStyle.Render("  unreachable"))
	}
	sb.WriteString("\n")

	// Channels
	sb.WriteString(m.renderChannels())
	sb.WriteString("\n")
	if m.prompting {
		sb.WriteString(m.input.View())
		sb.WriteString(statusStyle.Render("  to " + m.selectedChannel() + ", enter send, esc cancel"))
		sb.WriteString("\n")
	}

	// Log box
	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(max(m.width-4, 20))

	var logLines string
	if len(m.logs) == 0 {
		logLines = statusStyle.Render("tab select  o open  c close  m mode  e enable  d disable  : send  q quit")
	} else {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func (m teleopModel) renderChannels() string {
	selected := m.selectedChannel()
	rows := make([][]string, 0, len(m.state.Channels))
	for _, cs := range m.state.Channels {
		status := "closed"
		if cs.Open {
			status = "open"
		}
		marker := " "
		if cs.Name == selected {
			marker = "›"
		}
		rows = append(rows, []string{
			marker + cs.Name,
			cs.Point.String(),
			status,
			cs.Mode.String(),
			fmt.Sprintf("%d", cs.Cooldown),
			fmt.Sprintf("%.0f, %.0f, %.0f", cs.Target.X, cs.Target.Y, cs.Target.Z),
			sentColumn(cs),
		})
	}

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	openStyle := cellStyle.Foreground(lipgloss.Color("10"))
	closedStyle := cellStyle.Foreground(lipgloss.Color("9"))

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(statusStyle).
		Headers("Channel", "Point", "Port", "Mode", "Cooldown", "Target", "Sent").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 2 && row >= 0 && row < len(m.state.Channels) {
				if m.state.Channels[row].Open {
					return openStyle
				}
				return closedStyle
			}
			return cellStyle
		}).
		Render()
}

func sentColumn(cs teleop.ChannelState) string {
	if cs.SolveErr != nil {
		return "out of reach"
	}
	return cs.Sent
}

func renderLegend() string {
	var items []string
	for _, j := range joints {
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(j.color)).Bold(true)
		items = append(items, colorStyle.Render("━━")+" "+j.name)
	}
	return strings.Join(items, "  ")
}

// buildSource returns the configured tracking source and a cleanup function.
func buildSource(cfg *config.Config, solver *kinematics.Solver) (tracking.Source, func(), error) {
	switch cfg.Tracking.Source {
	case config.SourceReplay:
		r, err := tracking.OpenReplay(cfg.Tracking.Recording, cfg.Tracking.Loop)
		if err != nil {
			return nil, nil, err
		}
		return r, func() {}, nil

	case config.SourceArm:
		if cfg.Leader.Port == "" || !cfg.Leader.IsCalibrated() {
			return nil, nil, errors.New("leader arm not configured, run 'kxr setup' first")
		}
		point, err := tracking.ParseBodyPoint(cfg.Leader.Point)
		if err != nil {
			return nil, nil, err
		}
		arm, err := robot.NewArm(cfg.Leader.Port, cfg.Leader.Calibration)
		if err != nil {
			return nil, nil, fmt.Errorf("leader arm: %w", err)
		}
		// Torque off so the arm can be guided by hand.
		if err := arm.Disable(context.Background()); err != nil {
			arm.Close()
			return nil, nil, fmt.Errorf("leader arm: %w", err)
		}
		src := tracking.NewArmSource(arm, solver, tracking.ArmConfig{
			Point:    point,
			Interval: time.Duration(cfg.Leader.IntervalMs) * time.Millisecond,
			PerMeter: cfg.Tracking.Scale,
		})
		return src, func() { arm.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown tracking source %q", cfg.Tracking.Source)
}

func (c *TeleoperateCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if c.Recording != "" {
		cfg.Tracking.Source = config.SourceReplay
		cfg.Tracking.Recording = c.Recording
		cfg.Tracking.Loop = c.Loop
	}
	if c.Hz > 0 {
		cfg.Hz = c.Hz
	}
	if len(cfg.Channels) == 0 {
		return errors.New("no channels configured, run 'kxr setup' first")
	}

	var logOut io.Writer = io.Discard
	if c.LogFile != "" {
		f, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logOut = f
	}
	logger := newLogger(logOut)

	solver, err := kinematics.NewSolver(cfg.Geometry)
	if err != nil {
		return err
	}
	source, cleanup, err := buildSource(cfg, solver)
	if err != nil {
		return err
	}
	defer cleanup()

	var recording *tracking.Recording
	if c.Record != "" {
		f, err := os.Create(c.Record)
		if err != nil {
			return fmt.Errorf("create recording: %w", err)
		}
		defer f.Close()
		recording = tracking.NewRecording(source, f)
		source = recording
	}

	chans := make([]*channel.Channel, 0, len(cfg.Channels))
	for _, cc := range cfg.Channels {
		chans = append(chans, channel.New(cc, nil))
	}

	ctrl, err := teleop.NewController(teleop.Config{
		Source:   source,
		Solver:   solver,
		Channels: chans,
		Hz:       cfg.Hz,
		Scale:    cfg.Tracking.Scale,
		Gamma:    cfg.Gamma,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("create controller: %w", err)
	}
	logger.Info("loaded configuration", "file", opts.ConfigFile, "channels", len(chans), "source", cfg.Tracking.Source)

	// Start controller in background
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := ctrl.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("controller stopped", "err", err)
		}
	}()

	// Run TUI
	p := tea.NewProgram(initialTeleopModel(ctrl), tea.WithAltScreen())
	_, runErr := p.Run()

	cancel()
	<-done
	if runErr != nil {
		return fmt.Errorf("run dashboard: %w", runErr)
	}
	if recording != nil {
		if err := recording.Err(); err != nil {
			return err
		}
		logger.Info("recorded tracking frames", "file", c.Record)
	}
	return nil
}
