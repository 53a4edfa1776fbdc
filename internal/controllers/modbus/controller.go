package modbusctrl

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	mbserver "github.com/tbrandon/mbserver"
	"go.uber.org/zap"

	"github.com/Agrid-Dev/thermoguard/internal/hvac"
	"github.com/Agrid-Dev/thermoguard/internal/ports"
	"github.com/Agrid-Dev/thermoguard/internal/safety"
)

// Register map.
//
//	Holding 0  temperature setpoint (x100, signed)
//	Holding 1  mode (1 off, 2 heat, 3 cool, 4 heat_cool)
//	Input   0  ambient temperature (x100, signed)
//	Input   1  action (1 idle, 2 heating, 3 cooling)
//	Input   2  safety state (0 inactive, 1 active heat, 2 active cool)
//	Input   3  heating hours today (x100)
//	Input   4  cooling hours today (x100)
//	Coil    0  manual override active; writing 0 clears it
const (
	HRSetpoint = iota
	HRMode
	holdingCount
)

const (
	IRAmbient = iota
	IRAction
	IRSafetyState
	IRHeatingHours
	IRCoolingHours
	inputCount
)

const CoilOverride = 0

// Unavailable is reported for temperatures the device has not provided.
const Unavailable uint16 = 0x8000

// Config for the Modbus controller.
type Config struct {
	DeviceID string
	Addr     string
	UnitID   byte // UnitID (Modbus slave/unit ID). Use an integer 1..247.
}

type Controller struct {
	svc ports.Service
	cfg Config
	log *zap.SugaredLogger

	serv *mbserver.Server
}

func New(svc ports.Service, cfg Config, log *zap.SugaredLogger) (*Controller, error) {
	if cfg.UnitID == 0 {
		return nil, errors.New("modbus: UnitID is required (non-zero)")
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:1502"
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Controller{svc: svc, cfg: cfg, log: log}, nil
}

// Run starts the Modbus server and blocks until ctx is canceled. Reads are
// served straight from the service status and writes are applied
// immediately.
func (c *Controller) Run(ctx context.Context) error {
	serv := mbserver.NewServer()
	c.serv = serv

	// Handlers go in before ListenTCP: mbserver reads the table from its
	// own goroutines.
	serv.RegisterFunctionHandler(1, c.readCoils)
	serv.RegisterFunctionHandler(3, c.readHolding)
	serv.RegisterFunctionHandler(4, c.readInput)
	serv.RegisterFunctionHandler(5, c.writeCoil)
	serv.RegisterFunctionHandler(6, c.writeRegister)
	serv.RegisterFunctionHandler(16, c.writeRegisters)

	if err := serv.ListenTCP(c.cfg.Addr); err != nil {
		return fmt.Errorf("mbserver listen tcp %s: %w", c.cfg.Addr, err)
	}
	c.log.Infow("modbus: listening", "addr", c.cfg.Addr, "unit_id", c.cfg.UnitID)

	<-ctx.Done()
	serv.Close()
	return ctx.Err()
}

func (c *Controller) readCoils(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	start, qty, ex := readRange(frame.GetData(), 2000)
	if ex != nil {
		return []byte{}, ex
	}
	if start != CoilOverride || qty != 1 {
		return []byte{}, &mbserver.IllegalDataAddress
	}
	coil := byte(0)
	if c.svc.Status().Override.Active {
		coil = 0x01
	}
	return []byte{1, coil}, &mbserver.Success
}

func (c *Controller) readHolding(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	start, qty, ex := readRange(frame.GetData(), 125)
	if ex != nil {
		return []byte{}, ex
	}
	if start+qty > holdingCount {
		return []byte{}, &mbserver.IllegalDataAddress
	}
	st := c.svc.Status()
	all := [holdingCount]uint16{
		HRSetpoint: encodeTemp(st.TemperatureSetpoint),
		HRMode:     uint16(st.Mode),
	}
	return registerResponse(all[start : start+qty]), &mbserver.Success
}

func (c *Controller) readInput(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	start, qty, ex := readRange(frame.GetData(), 125)
	if ex != nil {
		return []byte{}, ex
	}
	if start+qty > inputCount {
		return []byte{}, &mbserver.IllegalDataAddress
	}
	st := c.svc.Status()
	all := [inputCount]uint16{
		IRAmbient:      encodeTemp(st.AmbientTemperature),
		IRAction:       uint16(st.Action),
		IRSafetyState:  safetyCode(st.Safety.State),
		IRHeatingHours: encodeHours(st.HeatingHoursToday),
		IRCoolingHours: encodeHours(st.CoolingHoursToday),
	}
	return registerResponse(all[start : start+qty]), &mbserver.Success
}

func (c *Controller) writeCoil(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	data := frame.GetData()
	if len(data) < 4 {
		return []byte{}, &mbserver.IllegalDataValue
	}
	addr := binary.BigEndian.Uint16(data[0:2])
	value := binary.BigEndian.Uint16(data[2:4])

	if addr != CoilOverride {
		return []byte{}, &mbserver.IllegalDataAddress
	}
	switch value {
	case 0x0000:
		c.svc.ClearOverride()
	case 0xFF00:
		// Overrides only open through a manual change.
		return []byte{}, &mbserver.IllegalDataValue
	default:
		return []byte{}, &mbserver.IllegalDataValue
	}

	// echo request (address + value)
	resp := make([]byte, 4)
	copy(resp, data[0:4])
	return resp, &mbserver.Success
}

func (c *Controller) writeRegister(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	data := frame.GetData()
	if len(data) < 4 {
		return []byte{}, &mbserver.IllegalDataValue
	}
	addr := int(binary.BigEndian.Uint16(data[0:2]))
	value := binary.BigEndian.Uint16(data[2:4])

	if ex := c.apply(addr, value); ex != nil {
		return []byte{}, ex
	}

	resp := make([]byte, 4)
	copy(resp, data[0:4])
	return resp, &mbserver.Success
}

func (c *Controller) writeRegisters(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	d := frame.GetData()
	if len(d) < 5 {
		return []byte{}, &mbserver.IllegalDataValue
	}
	start := binary.BigEndian.Uint16(d[0:2])
	quantity := binary.BigEndian.Uint16(d[2:4])
	byteCount := int(d[4])
	if byteCount != int(quantity)*2 || len(d) < 5+byteCount {
		return []byte{}, &mbserver.IllegalDataValue
	}
	if int(start)+int(quantity) > holdingCount {
		return []byte{}, &mbserver.IllegalDataAddress
	}
	for i := 0; i < int(quantity); i++ {
		val := binary.BigEndian.Uint16(d[5+i*2 : 5+i*2+2])
		if ex := c.apply(int(start)+i, val); ex != nil {
			return []byte{}, ex
		}
	}

	resp := make([]byte, 4)
	binary.BigEndian.PutUint16(resp[0:2], start)
	binary.BigEndian.PutUint16(resp[2:4], quantity)
	return resp, &mbserver.Success
}

func (c *Controller) apply(addr int, value uint16) *mbserver.Exception {
	var err error
	switch addr {
	case HRSetpoint:
		if value == Unavailable {
			return &mbserver.IllegalDataValue
		}
		err = c.svc.SetSetpoint(decodeTemp(value))
	case HRMode:
		err = c.svc.SetMode(hvac.Mode(value))
	default:
		return &mbserver.IllegalDataAddress
	}
	if err != nil {
		c.log.Warnw("modbus: write rejected", "register", addr, "value", value, "error", err)
		return &mbserver.IllegalDataValue
	}
	return nil
}

func readRange(data []byte, maxQty int) (start, qty int, ex *mbserver.Exception) {
	if len(data) < 4 {
		return 0, 0, &mbserver.IllegalDataValue
	}
	start = int(binary.BigEndian.Uint16(data[0:2]))
	qty = int(binary.BigEndian.Uint16(data[2:4]))
	if qty == 0 || qty > maxQty {
		return 0, 0, &mbserver.IllegalDataValue
	}
	return start, qty, nil
}

// registerResponse builds byte count + register bytes.
func registerResponse(regs []uint16) []byte {
	byteCount := len(regs) * 2
	resp := make([]byte, 1+byteCount)
	resp[0] = byte(byteCount)
	for i, r := range regs {
		binary.BigEndian.PutUint16(resp[1+i*2:1+i*2+2], r)
	}
	return resp
}

func safetyCode(state string) uint16 {
	switch state {
	case safety.StateActiveHeat.String():
		return 1
	case safety.StateActiveCool.String():
		return 2
	default:
		return 0
	}
}

const TemperatureScale int = 100

func encodeTemp(v *float64) uint16 {
	if v == nil {
		return Unavailable
	}
	r := min(max(int(math.Round(*v*float64(TemperatureScale))), math.MinInt16+1), math.MaxInt16)
	return uint16(int16(r))
}

func decodeTemp(u uint16) float64 {
	i := int16(u)
	return float64(i) / float64(TemperatureScale)
}

func encodeHours(h float64) uint16 {
	return uint16(min(max(int(math.Round(h*100)), 0), math.MaxUint16))
}
