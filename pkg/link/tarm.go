package link

import (
	"github.com/pkg/errors"
	tarm "github.com/tarm/serial"
)

func openTarm(cfg Config) (Port, error) {
	port, err := tarm.OpenPort(&tarm.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}
	return port, nil
}
