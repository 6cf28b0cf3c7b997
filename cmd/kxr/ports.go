package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/kxrobot/kxr/pkg/link"
)

type PortsCommand struct{}

func (c *PortsCommand) Execute(args []string) error {
	ports, err := link.ListPorts()
	if err != nil {
		return fmt.Errorf("list ports: %w", err)
	}
	if len(ports) == 0 {
		fmt.Println(dimStyle.Render("No serial ports found."))
		return nil
	}

	assigned := map[string]string{}
	if cfg, err := loadConfig(); err == nil {
		for _, ch := range cfg.Channels {
			assigned[ch.Link.Device] = "channel " + ch.Name
		}
		if cfg.Leader.Port != "" {
			assigned[cfg.Leader.Port] = "leader arm"
		}
	}

	rows := make([][]string, 0, len(ports))
	for _, p := range ports {
		rows = append(rows, []string{p, assigned[p]})
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Port", "Assigned").
		Rows(rows...)
	fmt.Println(t.Render())
	return nil
}
