package main

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Agrid-Dev/thermoguard/internal/hvac"
	"github.com/Agrid-Dev/thermoguard/internal/orchestrator"
	"github.com/Agrid-Dev/thermoguard/internal/safety"
	"github.com/Agrid-Dev/thermoguard/internal/schedule"
	"github.com/Agrid-Dev/thermoguard/internal/thermostat"
)

// ManualCommand is a setpoint change made by a user at a given minute of
// the simulated day.
type ManualCommand struct {
	Minute int
	Value  float64
}

// SimulateDay runs one cold Monday, minute by minute, through the guard
// and writes the evolution to filename.
func SimulateDay(filename string, commands []ManualCommand) error {
	initial := thermostat.Snapshot{
		TemperatureSetpoint:    17.0,
		TemperatureSetpointMin: 5.0,
		TemperatureSetpointMax: 30.0,
		Mode:                   hvac.ModeOff,
		AmbientTemperature:     9.0,
	}
	pidParams := thermostat.PIDRegulatorParams{
		Kp:                0.05,
		TriggerHysteresis: 1.0,
		TargetHysteresis:  0.5,
	}
	heatLoss := thermostat.HeatLossSimulatorParams{
		Coefficient:        2.e-5,
		OutdoorTemperature: -5,
		DailySwing:         8,
	}

	th, err := thermostat.New(initial, pidParams, heatLoss)
	if err != nil {
		return fmt.Errorf("failed to create thermostat: %w", err)
	}
	outdoor, err := thermostat.NewHeatLossSimulator(heatLoss)
	if err != nil {
		return fmt.Errorf("failed to create heat loss model: %w", err)
	}

	sched, err := schedule.Parse(map[string][]schedule.RawEvent{
		"weekday": {
			{Time: "06:30", Temperature: ptr(20.0), HVACMode: ptr("heat")},
			{Time: "09:00", HVACMode: ptr("off")},
			{Time: "17:30", Temperature: ptr(20.5), HVACMode: ptr("heat")},
			{Time: "22:30", HVACMode: ptr("off")},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to parse schedule: %w", err)
	}

	now := time.Date(2026, time.January, 12, 0, 0, 0, 0, time.Local)
	clock := func() time.Time { return now }
	th.SetClock(clock)

	o, err := orchestrator.New(orchestrator.Options{
		DeviceID: "simulation",
		Device:   th,
		Safety:   safety.Config{MinTemp: ptr(8.0), Hysteresis: 1.0},
		Schedule: sched,
		Clock:    clock,
	})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{
		"Minute", "Time", "Outdoor", "Ambient", "Setpoint", "Mode", "Action", "Safety", "Override", "HeatingHours",
	}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	const minutes = 24 * 60
	for i := range minutes {
		for _, cmd := range commands {
			if cmd.Minute == i {
				if err := o.SetSetpoint(cmd.Value); err != nil {
					return fmt.Errorf("failed to update setpoint: %w", err)
				}
			}
		}

		o.Tick(now)
		st := o.Status()

		if err := writer.Write([]string{
			fmt.Sprintf("%d", i),
			now.Format("15:04"),
			fmt.Sprintf("%.2f", outdoor.Outdoor(now)),
			fmt.Sprintf("%.2f", deref(st.AmbientTemperature)),
			fmt.Sprintf("%.2f", deref(st.TemperatureSetpoint)),
			st.Mode.String(),
			st.Action.String(),
			st.Safety.State,
			fmt.Sprintf("%t", st.Override.Active),
			fmt.Sprintf("%.3f", st.HeatingHoursToday),
		}); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}

		th.Step(time.Minute)
		now = now.Add(time.Minute)
	}

	return nil
}

func ptr[T any](v T) *T { return &v }

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func main() {
	commands := []ManualCommand{
		// Someone comes home early and turns the heat up.
		{Minute: 15 * 60, Value: 21.5},
	}
	if err := SimulateDay("thermoguard.csv", commands); err != nil {
		log.Fatal(err)
	}
}
