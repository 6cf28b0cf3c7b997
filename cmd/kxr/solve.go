package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/kxrobot/kxr/pkg/kinematics"
)

type SolveCommand struct {
	Gamma float64 `long:"gamma" short:"g" description:"Tool angle in degrees (default from config)"`

	Args struct {
		X float64 `positional-arg-name:"x" required:"yes"`
		Y float64 `positional-arg-name:"y" required:"yes"`
		Z float64 `positional-arg-name:"z" required:"yes"`
	} `positional-args:"yes" required:"yes"`
}

func (c *SolveCommand) Execute(args []string) error {
	geom := kinematics.DefaultGeometry()
	gamma := c.Gamma
	if cfg, err := loadConfig(); err == nil {
		geom = cfg.Geometry
		if gamma == 0 {
			gamma = cfg.Gamma
		}
	}

	solver, err := kinematics.NewSolver(geom)
	if err != nil {
		return err
	}

	pose := kinematics.Pose{X: c.Args.X, Y: c.Args.Y, Z: c.Args.Z, Gamma: gamma}
	a, err := solver.Validate(pose)
	if err != nil {
		return err
	}

	fmt.Println(headerStyle.Render("Joint angles"))
	angles := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Joint", "Degrees").
		Rows(
			[]string{"theta0 (base)", fmt.Sprintf("%.3f", a.Theta0)},
			[]string{"alpha (shoulder)", fmt.Sprintf("%.3f", a.Alpha)},
			[]string{"beta (elbow)", fmt.Sprintf("%.3f", a.Beta)},
			[]string{"theta (wrist)", fmt.Sprintf("%.3f", a.Theta)},
		)
	fmt.Println(angles.Render())

	labels := []string{"base", "shoulder", "elbow", "wrist", "tool"}
	rows := make([][]string, 0, len(labels))
	for i, p := range solver.Chain(a) {
		rows = append(rows, []string{labels[i], fmt.Sprintf("%.2f", p.X), fmt.Sprintf("%.2f", p.Y), fmt.Sprintf("%.2f", p.Z)})
	}
	fmt.Println(headerStyle.Render("Joint positions"))
	fmt.Println(table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Joint", "X", "Y", "Z").
		Rows(rows...).
		Render())
	return nil
}
