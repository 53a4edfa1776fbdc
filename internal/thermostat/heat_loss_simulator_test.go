package thermostat

import (
	"math"
	"testing"
	"time"
)

func TestValidateParams(t *testing.T) {
	tests := []struct {
		name   string
		params HeatLossSimulatorParams
		want   error
	}{
		{
			name: "Valid params",
			params: HeatLossSimulatorParams{
				OutdoorTemperature: 10,
				Coefficient:        5,
			},
			want: nil,
		},
		{
			name: "Invalid params with negative coefficient",
			params: HeatLossSimulatorParams{
				OutdoorTemperature: 10,
				Coefficient:        -5,
			},
			want: ErrNegativeHeatLossCoefficient,
		},
		{
			name: "Invalid params with negative daily swing",
			params: HeatLossSimulatorParams{
				OutdoorTemperature: 10,
				Coefficient:        5,
				DailySwing:         -1,
			},
			want: ErrNegativeDailySwing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.params.Validate()
			if got != tt.want {
				t.Errorf("Got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHeatLossDeltaTemperature(t *testing.T) {
	tests := []struct {
		name        string
		outdoorTemp float64
		indoorTemp  float64
		want        func(float64) bool
	}{
		{
			name:        "Indoor temperature decreases if outdoor temperature is less",
			outdoorTemp: 5,
			indoorTemp:  20,
			want:        func(result float64) bool { return result < 0 },
		},
		{
			name:        "Indoor temperature increases if outdoor temperature is more",
			outdoorTemp: 30,
			indoorTemp:  20,
			want:        func(result float64) bool { return result > 0 },
		},
		{
			name:        "Indoor temperature is unchanged if equal to outdoor temperature",
			outdoorTemp: 20,
			indoorTemp:  20,
			want:        func(result float64) bool { return result == 0 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := HeatLossSimulatorParams{
				OutdoorTemperature: tt.outdoorTemp,
				Coefficient:        0.001,
			}
			sim, err := NewHeatLossSimulator(params)
			if err != nil {
				t.Fatalf("NewHeatLossSimulator() failed: %v", err)
			}
			result := sim.DeltaTemperature(tt.indoorTemp, time.Time{}, time.Second)
			if !tt.want(result) {
				t.Errorf("Test %q failed: got %v, initial %v", tt.name, result, tt.indoorTemp)
			}
		})
	}
}

func TestNewHeatLossSimulatorRejectsNegativeCoefficient(t *testing.T) {
	if _, err := NewHeatLossSimulator(HeatLossSimulatorParams{Coefficient: -1}); err != ErrNegativeHeatLossCoefficient {
		t.Fatalf("expected ErrNegativeHeatLossCoefficient, got %v", err)
	}
}

func TestOutdoorDailySwing(t *testing.T) {
	sim, err := NewHeatLossSimulator(HeatLossSimulatorParams{OutdoorTemperature: 0, DailySwing: 10})
	if err != nil {
		t.Fatalf("NewHeatLossSimulator() failed: %v", err)
	}
	day := func(h int) time.Time { return time.Date(2026, time.January, 12, h, 0, 0, 0, time.UTC) }

	tests := []struct {
		hour int
		want float64
	}{
		{5, -5},
		{17, 5},
		{11, 0},
		{23, 0},
	}
	for _, tt := range tests {
		if got := sim.Outdoor(day(tt.hour)); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Outdoor(%02d:00) = %v, want %v", tt.hour, got, tt.want)
		}
	}

	// Colder outside at night means faster loss.
	night := sim.DeltaTemperature(20, day(5), time.Minute)
	noon := sim.DeltaTemperature(20, day(17), time.Minute)
	if night != 0 || noon != 0 {
		t.Fatalf("zero coefficient must not move the temperature, got %v / %v", night, noon)
	}
	lossy, _ := NewHeatLossSimulator(HeatLossSimulatorParams{OutdoorTemperature: 0, DailySwing: 10, Coefficient: 1e-4})
	if n, d := lossy.DeltaTemperature(20, day(5), time.Minute), lossy.DeltaTemperature(20, day(17), time.Minute); n >= d {
		t.Fatalf("expected a larger drop at night: night=%v day=%v", n, d)
	}
}
