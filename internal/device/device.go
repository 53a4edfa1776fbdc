// Package device bundles a simulated thermostat with the orchestrator that
// guards it.
package device

import (
	"context"
	"time"

	"github.com/Agrid-Dev/thermoguard/internal/orchestrator"
	"github.com/Agrid-Dev/thermoguard/internal/thermostat"
)

type Device struct {
	ID string
	T  *thermostat.Thermostat
	O  *orchestrator.Orchestrator
}

func New(id string, t *thermostat.Thermostat, o *orchestrator.Orchestrator) *Device {
	return &Device{ID: id, T: t, O: o}
}

// Run steps the simulation every simInterval and evaluates every
// evalInterval, plus on each change the thermostat reports. It returns
// once both loops have stopped.
func (d *Device) Run(ctx context.Context, simInterval, evalInterval time.Duration) error {
	errc := make(chan error, 2)
	go func() { errc <- d.T.Run(ctx, simInterval) }()
	go func() { errc <- d.O.Run(ctx, evalInterval, d.T.Changes()) }()

	var first error
	for range 2 {
		if err := <-errc; first == nil {
			first = err
		}
	}
	return first
}
