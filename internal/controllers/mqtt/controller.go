package mqttctrl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/Agrid-Dev/thermoguard/internal/hvac"
	"github.com/Agrid-Dev/thermoguard/internal/ports"
	"github.com/Agrid-Dev/thermoguard/internal/safety"
)

type Config struct {
	// Identity
	DeviceID string

	// MQTT connection
	BrokerURL string
	ClientID  string

	// Topics
	BaseTopic string

	// Behavior
	QoS             byte
	RetainStatus    bool
	PublishInterval time.Duration

	Username string
	Password string
}

type Controller struct {
	svc ports.Service
	cfg Config
	log *zap.SugaredLogger

	mu     sync.RWMutex
	client mqtt.Client
}

func New(svc ports.Service, cfg Config, log *zap.SugaredLogger) (*Controller, error) {
	// ---- defaults ----

	if cfg.BrokerURL == "" {
		cfg.BrokerURL = "tcp://localhost:1883"
	}

	if cfg.DeviceID == "" {
		return nil, errors.New("mqtt: DeviceID is required")
	}
	if cfg.BaseTopic == "" {
		cfg.BaseTopic = "thermoguard/" + cfg.DeviceID
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "thermoguard-" + cfg.DeviceID
	}
	if cfg.PublishInterval <= 0 {
		cfg.PublishInterval = 1 * time.Second
	}
	if cfg.QoS > 1 {
		return nil, errors.New("mqtt: QoS must be 0 or 1")
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Controller{
		svc: svc,
		cfg: cfg,
		log: log,
	}, nil
}

func (c *Controller) Run(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(c.cfg.BrokerURL).
		SetClientID(c.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second)

	if c.cfg.Username != "" {
		opts.SetUsername(c.cfg.Username)
		opts.SetPassword(c.cfg.Password)
	}

	// Subscribe when connected/reconnected.
	opts.OnConnect = func(cl mqtt.Client) {
		topic := c.topic("set/+")
		token := cl.Subscribe(topic, c.cfg.QoS, c.onMessage)
		token.Wait()
		if err := token.Error(); err != nil {
			c.log.Errorw("mqtt: subscribe failed", "topic", topic, "error", err)
			return
		}
		c.log.Infow("mqtt: subscribed", "topic", topic)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		c.log.Warnw("mqtt: connection lost", "error", err)
	}

	cl := mqtt.NewClient(opts)
	tok := cl.Connect()
	tok.Wait()
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	c.setClient(cl)

	// Publish loop: publish status on interval, and only when changed.
	ticker := time.NewTicker(c.cfg.PublishInterval)
	defer ticker.Stop()

	last := c.publishStatus()

	for {
		select {
		case <-ctx.Done():
			c.setClient(nil)
			cl.Disconnect(250)
			return ctx.Err()

		case <-ticker.C:
			cur := toDTO(c.svc.Status())
			if !reflect.DeepEqual(cur, last) {
				last = c.publishStatus()
			}
		}
	}
}

// Notify publishes a safety event to <base>/events/safety. Events raised
// while disconnected are dropped.
func (c *Controller) Notify(e safety.Event) {
	cl := c.getClient()
	if cl == nil {
		c.log.Debugw("mqtt: not connected, safety event dropped", "kind", e.Kind)
		return
	}
	b, err := json.Marshal(e)
	if err != nil {
		c.log.Errorw("mqtt: encode safety event", "error", err)
		return
	}
	cl.Publish(c.topic("events/safety"), c.cfg.QoS, false, b)
}

func (c *Controller) publishStatus() statusDTO {
	dto := toDTO(c.svc.Status())
	cl := c.getClient()
	if cl == nil {
		return dto
	}
	b, err := json.Marshal(dto)
	if err != nil {
		c.log.Errorw("mqtt: encode status", "error", err)
		return dto
	}
	cl.Publish(c.topic("status"), c.cfg.QoS, c.cfg.RetainStatus, b)
	return dto
}

func (c *Controller) setClient(cl mqtt.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.client = cl
}

func (c *Controller) getClient() mqtt.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client
}

type statusDTO struct {
	DeviceID            string   `json:"device_id"`
	AmbientTemperature  *float64 `json:"ambient_temperature"`
	TemperatureSetpoint *float64 `json:"temperature_setpoint"`
	Mode                string   `json:"mode"`
	Action              string   `json:"action"`
	SafetyState         string   `json:"safety_state"`
	OverrideActive      bool     `json:"override_active"`
	HeatingHoursToday   float64  `json:"heating_hours_today"`
	CoolingHoursToday   float64  `json:"cooling_hours_today"`
}

func toDTO(s ports.Status) statusDTO {
	return statusDTO{
		DeviceID:            s.DeviceID,
		AmbientTemperature:  s.AmbientTemperature,
		TemperatureSetpoint: s.TemperatureSetpoint,
		Mode:                s.Mode.String(),
		Action:              s.Action.String(),
		SafetyState:         s.Safety.State,
		OverrideActive:      s.Override.Active,
		HeatingHoursToday:   s.HeatingHoursToday,
		CoolingHoursToday:   s.CoolingHoursToday,
	}
}

// Command payload format: {"value": ...}
type valueReq[T any] struct {
	Value *T `json:"value"`
}

func (c *Controller) onMessage(_ mqtt.Client, msg mqtt.Message) {
	// topic format: <base>/set/<field>
	t := msg.Topic()
	prefix := strings.TrimRight(c.cfg.BaseTopic, "/") + "/set/"
	if !strings.HasPrefix(t, prefix) {
		return
	}
	field := strings.TrimPrefix(t, prefix)

	if err := c.dispatch(field, msg.Payload()); err != nil {
		c.log.Warnw("mqtt: command rejected", "field", field, "error", err)
	}
}

func (c *Controller) dispatch(field string, payload []byte) error {
	switch field {
	case "temperature_setpoint":
		v, err := decodeValueStrict[float64](payload)
		if err != nil {
			return err
		}
		return c.svc.SetSetpoint(v)

	case "mode":
		s, err := decodeValueStrict[string](payload)
		if err != nil {
			return err
		}
		m, err := hvac.ParseMode(s)
		if err != nil {
			return err
		}
		return c.svc.SetMode(m)

	case "override_clear":
		v, err := decodeValueStrict[bool](payload)
		if err != nil {
			return err
		}
		if v {
			c.svc.ClearOverride()
		}
		return nil

	default:
		return fmt.Errorf("unknown field %q", field)
	}
}

func (c *Controller) topic(suffix string) string {
	return strings.TrimRight(c.cfg.BaseTopic, "/") + "/" + suffix
}

func decodeValueStrict[T any](b []byte) (T, error) {
	var zero T
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var req valueReq[T]
	if err := dec.Decode(&req); err != nil {
		return zero, err
	}
	if req.Value == nil {
		return zero, errors.New("missing field 'value'")
	}
	return *req.Value, nil
}
