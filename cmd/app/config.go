package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/Agrid-Dev/thermoguard/internal/hvac"
	"github.com/Agrid-Dev/thermoguard/internal/safety"
	"github.com/Agrid-Dev/thermoguard/internal/schedule"
	"github.com/Agrid-Dev/thermoguard/internal/thermostat"
)

const envPrefix = "THERMOGUARD_"

const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

var (
	ErrMissingDeviceID     = errors.New("device_id is required")
	ErrUnknownStore        = errors.New("unknown store kind")
	ErrUnsupportedFormat   = errors.New("unsupported config extension")
	ErrSafetyOutsideRange  = errors.New("safety bound outside the thermostat setpoint range")
	ErrScheduleOutOfRange  = errors.New("scheduled temperature outside the thermostat setpoint range")
	ErrNonPositiveInterval = errors.New("intervals must be positive")
)

type Config struct {
	DeviceID           string                         `koanf:"device_id"`
	LogLevel           string                         `koanf:"log_level"`
	EvaluationInterval time.Duration                  `koanf:"evaluation_interval"`
	Controllers        ControllersConfig              `koanf:"controllers"`
	Thermostat         ThermostatConfig               `koanf:"thermostat"`
	Regulator          RegulatorConfig                `koanf:"regulator"`
	HeatLoss           HeatLossConfig                 `koanf:"heat_loss"`
	Safety             SafetyConfig                   `koanf:"safety"`
	Schedule           map[string][]schedule.RawEvent `koanf:"schedule,omitempty"`
	Store              StoreConfig                    `koanf:"store"`
}

type ControllersConfig struct {
	HTTP   HTTPConfig   `koanf:"http"`
	MQTT   MQTTConfig   `koanf:"mqtt"`
	Modbus ModbusConfig `koanf:"modbus"`
}

type HTTPConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

type MQTTConfig struct {
	Enabled         bool          `koanf:"enabled"`
	BrokerURL       string        `koanf:"broker_url"`
	ClientID        string        `koanf:"client_id"`
	BaseTopic       string        `koanf:"base_topic"`
	QoS             byte          `koanf:"qos"`
	RetainStatus    bool          `koanf:"retain_status"`
	PublishInterval time.Duration `koanf:"publish_interval"`
	Username        string        `koanf:"username"`
	Password        string        `koanf:"password"`
}

type ModbusConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
	UnitID  byte   `koanf:"unit_id"`
}

type ThermostatConfig struct {
	AmbientTemperature float64 `koanf:"ambient_temperature"`
	Setpoint           float64 `koanf:"temperature_setpoint"`
	SetpointMin        float64 `koanf:"temperature_setpoint_min"`
	SetpointMax        float64 `koanf:"temperature_setpoint_max"`
	Mode               string  `koanf:"mode"` // "off" | "heat" | "cool" | "heat_cool"
}

type RegulatorConfig struct {
	Interval          time.Duration `koanf:"interval"`
	Kp                float64       `koanf:"kp"`
	Ki                float64       `koanf:"ki"`
	Kd                float64       `koanf:"kd"`
	TriggerHysteresis float64       `koanf:"trigger_hysteresis"`
	TargetHysteresis  float64       `koanf:"target_hysteresis"`
}

type HeatLossConfig struct {
	Coefficient        float64 `koanf:"coefficient"`
	OutdoorTemperature float64 `koanf:"outdoor_temperature"`
	DailySwing         float64 `koanf:"daily_swing"`
}

type SafetyConfig struct {
	MinTemp    *float64 `koanf:"min_temp,omitempty"`
	MaxTemp    *float64 `koanf:"max_temp,omitempty"`
	Hysteresis float64  `koanf:"hysteresis"`
}

// StoreConfig selects where runtime totals and safety events live. Path is
// a directory for "file" and a database file for "sqlite".
type StoreConfig struct {
	Kind string `koanf:"kind"`
	Path string `koanf:"path"`
}

func DefaultConfig() Config {
	return Config{
		DeviceID:           "default",
		LogLevel:           "info",
		EvaluationInterval: time.Minute,
		Controllers: ControllersConfig{
			HTTP: HTTPConfig{Enabled: true, Addr: ":8080"},
			MQTT: MQTTConfig{
				BrokerURL:       "tcp://localhost:1883",
				PublishInterval: time.Second,
			},
			Modbus: ModbusConfig{Addr: "127.0.0.1:1502", UnitID: 1},
		},
		Thermostat: ThermostatConfig{
			AmbientTemperature: 21,
			Setpoint:           21,
			SetpointMin:        5,
			SetpointMax:        35,
			Mode:               "off",
		},
		Regulator: RegulatorConfig{
			Interval:          time.Second,
			Kp:                0.1,
			TriggerHysteresis: 0.5,
			TargetHysteresis:  0.2,
		},
		HeatLoss: HeatLossConfig{Coefficient: 0.0001, OutdoorTemperature: 5, DailySwing: 6},
		Safety:   SafetyConfig{Hysteresis: safety.DefaultHysteresis},
		Store:    StoreConfig{Kind: StoreFile, Path: ".storage"},
	}
}

// Load layers defaults, the config file (when it exists) and THERMOGUARD_*
// environment variables, then validates the result.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			parser, err := parserFor(path)
			if err != nil {
				return Config{}, err
			}
			if err := k.Load(file.Provider(path), parser); err != nil {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			return envKeyTransform(strings.TrimPrefix(key, envPrefix)), value
		},
	}), nil); err != nil {
		return Config{}, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	// Containers commonly hand out the port alone.
	if v := os.Getenv("PORT"); v != "" && os.Getenv(envPrefix+"CONTROLLERS_HTTP_ADDR") == "" {
		cfg.Controllers.HTTP.Addr = ":" + v
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Watch reloads the file on every change and hands the result to fn. A
// reload that fails validation is passed along as an error.
func Watch(path string, fn func(Config, error)) (stop func() error, err error) {
	f := file.Provider(path)
	if err := f.Watch(func(_ any, err error) {
		if err != nil {
			fn(Config{}, err)
			return
		}
		fn(Load(path))
	}); err != nil {
		return nil, fmt.Errorf("watch config: %w", err)
	}
	return f.Unwatch, nil
}

func parserFor(path string) (koanf.Parser, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnsupportedFormat, ext)
	}
}

// envSections are config sections whose env keys map SECTION_FIELD to
// section.field. Controllers nest one level deeper and are handled apart.
var envSections = []string{"thermostat", "regulator", "heat_loss", "safety", "store"}

// envKeyTransform maps an env key without prefix to a koanf path, e.g.
// CONTROLLERS_MQTT_PUBLISH_INTERVAL to controllers.mqtt.publish_interval.
func envKeyTransform(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}

	if rest, ok := strings.CutPrefix(s, "controllers_"); ok {
		parts := strings.SplitN(rest, "_", 2)
		if len(parts) < 2 {
			return s
		}
		return "controllers." + parts[0] + "." + parts[1]
	}

	for _, section := range envSections {
		if rest, ok := strings.CutPrefix(s, section+"_"); ok && rest != "" {
			return section + "." + rest
		}
	}
	return s
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.DeviceID) == "" {
		return ErrMissingDeviceID
	}
	if c.EvaluationInterval <= 0 || c.Regulator.Interval <= 0 {
		return ErrNonPositiveInterval
	}
	switch c.Store.Kind {
	case StoreFile, StoreSQLite, StoreMemory:
	default:
		return fmt.Errorf("%w %q", ErrUnknownStore, c.Store.Kind)
	}

	snap, err := c.Snapshot()
	if err != nil {
		return err
	}
	sc := c.SafetyConfig()
	if err := sc.Validate(); err != nil {
		return fmt.Errorf("safety: %w", err)
	}
	for _, b := range []*float64{sc.MinTemp, sc.MaxTemp} {
		if b != nil && !inRange(*b, snap) {
			return fmt.Errorf("%w: %.2f not in [%.2f, %.2f]", ErrSafetyOutsideRange, *b,
				snap.TemperatureSetpointMin, snap.TemperatureSetpointMax)
		}
	}

	s, err := c.ParsedSchedule()
	if err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	for name, events := range s.Raw() {
		for _, e := range events {
			if e.Temperature != nil && !inRange(*e.Temperature, snap) {
				return fmt.Errorf("%w: %s %s %.2f", ErrScheduleOutOfRange, name, e.Time, *e.Temperature)
			}
		}
	}
	return nil
}

func inRange(v float64, s thermostat.Snapshot) bool {
	return v >= s.TemperatureSetpointMin && v <= s.TemperatureSetpointMax
}

func (c Config) Snapshot() (thermostat.Snapshot, error) {
	mode, err := hvac.ParseMode(strings.ToLower(strings.TrimSpace(c.Thermostat.Mode)))
	if err != nil {
		return thermostat.Snapshot{}, err
	}
	return thermostat.Snapshot{
		TemperatureSetpoint:    c.Thermostat.Setpoint,
		TemperatureSetpointMin: c.Thermostat.SetpointMin,
		TemperatureSetpointMax: c.Thermostat.SetpointMax,
		Mode:                   mode,
		AmbientTemperature:     c.Thermostat.AmbientTemperature,
	}, nil
}

func (c Config) RegulatorParams() thermostat.PIDRegulatorParams {
	return thermostat.PIDRegulatorParams{
		Kp:                c.Regulator.Kp,
		Ki:                c.Regulator.Ki,
		Kd:                c.Regulator.Kd,
		TriggerHysteresis: c.Regulator.TriggerHysteresis,
		TargetHysteresis:  c.Regulator.TargetHysteresis,
	}
}

func (c Config) HeatLossParams() thermostat.HeatLossSimulatorParams {
	return thermostat.HeatLossSimulatorParams{
		OutdoorTemperature: c.HeatLoss.OutdoorTemperature,
		DailySwing:         c.HeatLoss.DailySwing,
		Coefficient:        c.HeatLoss.Coefficient,
	}
}

func (c Config) SafetyConfig() safety.Config {
	return safety.Config{
		MinTemp:    c.Safety.MinTemp,
		MaxTemp:    c.Safety.MaxTemp,
		Hysteresis: c.Safety.Hysteresis,
	}
}

func (c Config) ParsedSchedule() (schedule.Schedule, error) {
	return schedule.Parse(c.Schedule)
}
