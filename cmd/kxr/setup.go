package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/hipsterbrown/feetech-servo/feetech"

	"github.com/kxrobot/kxr/pkg/channel"
	"github.com/kxrobot/kxr/pkg/config"
	"github.com/kxrobot/kxr/pkg/link"
	"github.com/kxrobot/kxr/pkg/robot"
	"github.com/kxrobot/kxr/pkg/tracking"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type SetupCommand struct {
	SkipCalibration bool `long:"skip-calibration" description:"Keep the existing leader arm calibration"`
}

func (c *SetupCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("kxr Setup"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━"))
	fmt.Println()

	cfg := config.Default()
	if config.Exists(opts.ConfigFile) {
		existing, err := config.Load(opts.ConfigFile)
		if err != nil {
			return err
		}
		cfg = existing
	}

	ports, err := link.ListPorts()
	if err != nil {
		return fmt.Errorf("list ports: %w", err)
	}
	var candidates []string
	for _, p := range ports {
		// Skip Bluetooth ports on macOS
		if !strings.Contains(p, "Bluetooth") {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		fmt.Println("No serial ports found.")
		fmt.Println("Make sure the controllers are connected and powered on.")
		os.Exit(1)
	}

	// Step 1: find the leader arm
	fmt.Println(subHeaderStyle.Render("━━━ Leader Arm ━━━"))
	fmt.Println()
	leader := findLeaderArm(candidates)
	if leader != nil {
		cfg.Leader.Port = leader.port
		candidates = without(candidates, leader.port)
	} else {
		fmt.Println(dimStyle.Render("No leader arm found; tracking will need a recording."))
	}

	// Step 2: assign the remaining ports to channels
	fmt.Println()
	fmt.Println(subHeaderStyle.Render("━━━ Channels ━━━"))
	fmt.Println()
	for _, port := range candidates {
		ch, ok := askChannel(port, len(cfg.Channels))
		if !ok {
			continue
		}
		cfg.SetChannel(ch)
		fmt.Printf("  %s → channel %s (%s)\n", port, ch.Name, ch.Point)
	}

	if err := cfg.Save(opts.ConfigFile); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	// Step 3: calibrate the leader arm
	if leader != nil && !(c.SkipCalibration && cfg.Leader.IsCalibrated()) {
		fmt.Println()
		fmt.Println(subHeaderStyle.Render("━━━ Calibrating Leader Arm ━━━"))
		fmt.Println()
		calibrateArm(leader, &cfg.Leader)

		if err := cfg.Save(opts.ConfigFile); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
	}

	fmt.Println()
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println(successStyle.Render("Setup complete!"))
	fmt.Printf("Configuration saved to %s\n", opts.ConfigFile)
	fmt.Println()
	fmt.Println("Start teleoperation with: " + headerStyle.Render("kxr teleoperate"))
	return nil
}

func without(list []string, drop string) []string {
	out := list[:0:0]
	for _, s := range list {
		if s != drop {
			out = append(out, s)
		}
	}
	return out
}

type armInfo struct {
	port   string
	servos []feetech.FoundServo
	bus    *feetech.Bus
}

func openBus(port string) (*feetech.Bus, error) {
	return feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: robot.BusBaudRate,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
}

// findLeaderArm returns the first port with servos 1-4 that the operator
// confirms after it wiggles.
func findLeaderArm(ports []string) *armInfo {
	for _, port := range ports {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)

		bus, err := openBus(port)
		if err != nil {
			cancel()
			continue
		}

		servos, err := bus.Scan(ctx, 1, len(robot.AllMotors()))
		cancel()
		if err != nil || !isLeaderArm(servos) {
			bus.Close()
			continue
		}

		fmt.Printf("  Found servo arm on %s\n", port)
		arm := &armInfo{port: port, servos: servos, bus: bus}
		if confirmWithWiggle(arm) {
			return arm
		}
		bus.Close()
	}
	return nil
}

func isLeaderArm(servos []feetech.FoundServo) bool {
	n := len(robot.AllMotors())
	if len(servos) != n {
		return false
	}

	ids := make(map[int]bool)
	for _, s := range servos {
		ids[s.ID] = true
	}
	for i := 1; i <= n; i++ {
		if !ids[i] {
			return false
		}
	}
	return true
}

func confirmWithWiggle(arm *armInfo) bool {
	ctx := context.Background()

	// Wiggle the base servo
	var servo *feetech.Servo
	for _, s := range arm.servos {
		if s.ID == 1 {
			servo = feetech.NewServo(arm.bus, s.ID, s.Model)
			break
		}
	}
	if servo == nil {
		return false
	}

	originalPos, err := servo.Position(ctx)
	if err != nil {
		fmt.Printf("  Error reading position: %v\n", err)
		return false
	}
	if err := servo.Enable(ctx); err != nil {
		fmt.Printf("  Error enabling servo: %v\n", err)
		return false
	}

	fmt.Printf("\n  Wiggling arm on %s...\n", arm.port)

	wiggleAmount := 30
	moveTimeMs := 500
	for _, pos := range []int{originalPos + wiggleAmount, originalPos - wiggleAmount, originalPos} {
		servo.SetPositionWithTime(ctx, pos, moveTimeMs)
		time.Sleep(time.Duration(moveTimeMs+100) * time.Millisecond)
	}
	servo.Disable(ctx)

	use := true
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Use the arm on %s as the leader?", arm.port)).
				Description("The arm that just wiggled").
				Value(&use),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}
	return use
}

// askChannel asks whether port drives an arm and which body point it follows.
func askChannel(port string, existing int) (channel.Config, bool) {
	use := true
	name := fmt.Sprintf("arm%d", existing+1)
	point := tracking.RightHand.String()

	var pointOptions []huh.Option[string]
	for _, p := range tracking.BodyPoints() {
		pointOptions = append(pointOptions, huh.NewOption(p.String(), p.String()))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Is an arm controller on %s?", port)).
				Value(&use),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Channel name").
				Value(&name).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("name is required")
					}
					return nil
				}),
			huh.NewSelect[string]().
				Title("Body point to follow").
				Options(pointOptions...).
				Value(&point),
		).WithHideFunc(func() bool { return !use }),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}
	if !use {
		return channel.Config{}, false
	}

	ch := config.DefaultChannel(strings.TrimSpace(name), port)
	ch.Point = point
	return ch, true
}

func waitForUser(prompt string) {
	fmt.Println(prompt)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("").
				Affirmative("Continue").
				Negative("").
				Value(new(bool)),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}
}

func calibrateArm(arm *armInfo, armConfig *config.ArmConfig) {
	defer arm.bus.Close()
	fmt.Printf("Calibrating leader arm on %s\n", arm.port)
	fmt.Println()

	// Create servos map by ID
	servoMap := make(map[int]*feetech.Servo)
	for _, s := range arm.servos {
		servoMap[s.ID] = feetech.NewServo(arm.bus, s.ID, s.Model)
	}

	// Disable all servos so user can move arm freely
	ctx := context.Background()
	for _, servo := range servoMap {
		servo.Disable(ctx)
	}

	motors := robot.AllMotors()

	// Record the zero pose
	fmt.Println(subHeaderStyle.Render("Record zero pose"))
	waitForUser("Point the base forward and stretch the arm out horizontally, wrist level.")

	homing := make(map[robot.MotorName]int)
	curPositions := make(map[robot.MotorName]int)
	minPositions := make(map[robot.MotorName]int)
	maxPositions := make(map[robot.MotorName]int)
	for i, motorName := range motors {
		servo := servoMap[i+1]
		pos, err := servo.Position(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", motorName, err)
			os.Exit(1)
		}
		homing[motorName] = pos
		curPositions[motorName] = pos
		minPositions[motorName] = pos
		maxPositions[motorName] = pos
	}

	// Record min/max by tracking while user moves arm
	fmt.Println()
	fmt.Println(subHeaderStyle.Render("Record range of motion"))
	fmt.Println("Move each joint to its minimum AND maximum positions.")
	fmt.Println()

	model := newCalibrationModel(motors, servoMap, homing, curPositions, minPositions, maxPositions)
	p := tea.NewProgram(model)
	finalModel, err := p.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error running calibration: %v\n", err)
		os.Exit(1)
	}
	cm := finalModel.(calibrationModel)

	calibration := make(robot.Calibration)
	for i, motorName := range motors {
		calibration[motorName] = robot.MotorCalibration{
			ID:           i + 1,
			HomingOffset: homing[motorName],
			RangeMin:     cm.minPositions[motorName],
			RangeMax:     cm.maxPositions[motorName],
		}
	}

	armConfig.Calibration = calibration
	fmt.Println()
	fmt.Println("Leader arm calibrated.")
}

// Calibration TUI model
type calibrationModel struct {
	motors       []robot.MotorName
	servoMap     map[int]*feetech.Servo
	homing       map[robot.MotorName]int
	curPositions map[robot.MotorName]int
	minPositions map[robot.MotorName]int
	maxPositions map[robot.MotorName]int
	quitting     bool
}

type tickMsg time.Time

func newCalibrationModel(
	motors []robot.MotorName,
	servoMap map[int]*feetech.Servo,
	homing, curPositions, minPositions, maxPositions map[robot.MotorName]int,
) calibrationModel {
	return calibrationModel{
		motors:       motors,
		servoMap:     servoMap,
		homing:       homing,
		curPositions: curPositions,
		minPositions: minPositions,
		maxPositions: maxPositions,
	}
}

func calibrationTick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m calibrationModel) Init() tea.Cmd {
	return calibrationTick()
}

func (m calibrationModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter", "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		ctx := context.Background()
		for i, motorName := range m.motors {
			pos, err := m.servoMap[i+1].Position(ctx)
			if err != nil {
				continue
			}
			m.curPositions[motorName] = pos
			if pos < m.minPositions[motorName] {
				m.minPositions[motorName] = pos
			}
			if pos > m.maxPositions[motorName] {
				m.maxPositions[motorName] = pos
			}
		}
		return m, calibrationTick()
	}

	return m, nil
}

func (m calibrationModel) View() string {
	if m.quitting {
		return ""
	}

	var sb strings.Builder

	tableHeaderStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	tableMotorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	tableCellStyle := lipgloss.NewStyle().Padding(0, 1)
	tableCurrentStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Padding(0, 1)
	tableRangeGoodStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Padding(0, 1)
	tableRangeLowStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(0, 1)

	rows := make([][]string, 0, len(m.motors))
	ranges := make([]int, 0, len(m.motors))
	for _, motorName := range m.motors {
		mc := robot.MotorCalibration{
			HomingOffset: m.homing[motorName],
			RangeMin:     m.minPositions[motorName],
			RangeMax:     m.maxPositions[motorName],
		}
		cur := m.curPositions[motorName]
		ranges = append(ranges, mc.RangeMax-mc.RangeMin)
		rows = append(rows, []string{
			string(motorName),
			fmt.Sprintf("%d", cur),
			fmt.Sprintf("%.1f°", mc.Degrees(cur)),
			fmt.Sprintf("%+.0f%%", mc.Normalize(cur)),
			fmt.Sprintf("%d", mc.RangeMin),
			fmt.Sprintf("%d", mc.RangeMax),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Motor", "Current", "Angle", "Range %", "Min", "Max").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			switch col {
			case 0:
				return tableMotorStyle
			case 1, 2:
				return tableCurrentStyle
			case 4, 5:
				if row >= 0 && row < len(ranges) && ranges[row] > 500 {
					return tableRangeGoodStyle
				}
				return tableRangeLowStyle
			default:
				return tableCellStyle
			}
		})

	sb.WriteString(t.Render())
	sb.WriteString("\n\n")
	sb.WriteString(dimStyle.Render("Press Enter when done"))

	return sb.String()
}
