package thermostat

import (
	"math"
	"time"
)

// coldestHour is when the outdoor temperature bottoms out.
const coldestHour = 5

type HeatLossSimulatorParams struct {
	OutdoorTemperature float64 // daily mean
	DailySwing         float64 // peak-to-peak outdoor variation over a day, >= 0
	Coefficient        float64 // >= 0, conductivity per second. 0 for no loss.
}

func (params HeatLossSimulatorParams) Validate() error {
	if params.Coefficient < 0 {
		return ErrNegativeHeatLossCoefficient
	}
	if params.DailySwing < 0 {
		return ErrNegativeDailySwing
	}
	return nil
}

// HeatLossSimulator drifts the indoor temperature toward the outdoor one,
// which follows a daily cosine around its mean.
type HeatLossSimulator struct {
	params HeatLossSimulatorParams
}

func NewHeatLossSimulator(params HeatLossSimulatorParams) (*HeatLossSimulator, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &HeatLossSimulator{params: params}, nil
}

// Outdoor returns the outdoor temperature at local time at.
func (h *HeatLossSimulator) Outdoor(at time.Time) float64 {
	if h.params.DailySwing == 0 {
		return h.params.OutdoorTemperature
	}
	hour := float64(at.Hour()) + float64(at.Minute())/60
	phase := 2 * math.Pi * (hour - coldestHour) / 24
	return h.params.OutdoorTemperature - h.params.DailySwing/2*math.Cos(phase)
}

func (h *HeatLossSimulator) DeltaTemperature(indoorTemperature float64, at time.Time, dt time.Duration) float64 {
	return h.params.Coefficient * (h.Outdoor(at) - indoorTemperature) * dt.Seconds()
}
