// Wire commands: identify, uptime and the pin diagnostics
package core

import (
	"sync"

	"periph.io/x/conn/v3/gpio"

	"gohal/debug"
	"gohal/periman"
	"gohal/protocol"
)

// Responder sends response messages to the host. *protocol.Session
// implements it.
type Responder interface {
	Send(e *protocol.Encoder) error
}

var (
	responderMu sync.RWMutex
	responder   Responder
)

// SetResponder sets where responses go, usually the firmware's session
func SetResponder(r Responder) {
	responderMu.Lock()
	responder = r
	responderMu.Unlock()
}

// SendResponse sends the registered response name with args encoded by fill.
// Without a responder the message is dropped.
func SendResponse(name string, fill func(e *protocol.Encoder)) error {
	c, ok := globalRegistry.Lookup(name)
	if !ok {
		panic("response not registered: " + name)
	}
	responderMu.RLock()
	r := responder
	responderMu.RUnlock()
	if r == nil {
		return nil
	}
	e := protocol.NewEncoder(c.ID)
	if fill != nil {
		fill(e)
	}
	return r.Send(e)
}

var initCommandsOnce sync.Once

// InitCoreCommands registers every wire command. identify_response and
// identify must keep ids 0 and 1; hosts bootstrap with them.
func InitCoreCommands() {
	initCommandsOnce.Do(func() {
		RegisterResponse("identify_response", "offset=%u data=%*s")
		RegisterCommand("identify", "offset=%u count=%c", handleIdentify)

		RegisterCommand("get_uptime", "", handleGetUptime)
		RegisterResponse("uptime", "high=%u clock=%u")
		RegisterResponse("command_error", "id=%u message=%*s")

		RegisterCommand("query_pin", "pin=%c", handleQueryPin)
		RegisterCommand("query_pins", "", handleQueryPins)
		RegisterResponse("pin_bus", "pin=%c type=%c bus_num=%i channel=%i extra=%*s")
		RegisterResponse("pins_done", "count=%c")
		RegisterCommand("clear_pin", "pin=%c", handleClearPin)
		RegisterResponse("pin_cleared", "pin=%c ok=%c")

		RegisterCommand("pin_mode", "pin=%c mode=%c", handlePinMode)
		RegisterCommand("digital_write", "pin=%c value=%c", handleDigitalWrite)
		RegisterCommand("digital_read", "pin=%c", handleDigitalRead)
		RegisterResponse("digital_state", "pin=%c value=%c")
		RegisterCommand("analog_read", "pin=%c", handleAnalogRead)
		RegisterResponse("analog_state", "pin=%c value=%hu")

		RegisterConstant("CLOCK_FREQ", TimerFreq)
	})
}

// HandleCommand is the session handler. A failing command is reported to
// the host with command_error and the error is returned for logging.
func HandleCommand(id uint16, args *protocol.Decoder) error {
	err := globalRegistry.Dispatch(id, args)
	if err == nil {
		return nil
	}
	debug.Warnf("command %d: %v", id, err)
	if serr := SendResponse("command_error", func(e *protocol.Encoder) {
		e.Uint(uint32(id)).String(err.Error())
	}); serr != nil {
		debug.Errorf("reporting command error: %v", serr)
	}
	return err
}

func handleIdentify(args *protocol.Decoder) error {
	offset, err := args.Uint()
	if err != nil {
		return err
	}
	count, err := args.Uint()
	if err != nil {
		return err
	}
	chunk := globalDictionary.Chunk(offset, uint8(count))
	return SendResponse("identify_response", func(e *protocol.Encoder) {
		e.Uint(offset).Bytes(chunk)
	})
}

func handleGetUptime(*protocol.Decoder) error {
	up := GetUptime()
	return SendResponse("uptime", func(e *protocol.Encoder) {
		e.Uint(uint32(up >> 32)).Uint(uint32(up))
	})
}

func decodePin(args *protocol.Decoder) (periman.Pin, error) {
	v, err := args.Uint()
	if err != nil {
		return periman.NoPin, err
	}
	return periman.Pin(v), nil
}

func sendPinBus(info periman.PinInfo) error {
	return SendResponse("pin_bus", func(e *protocol.Encoder) {
		e.Uint(uint32(info.Pin)).Uint(uint32(info.Type)).
			Int(int32(info.BusNum)).Int(int32(info.BusChannel)).String(info.ExtraType)
	})
}

func handleQueryPin(args *protocol.Decoder) error {
	pin, err := decodePin(args)
	if err != nil {
		return err
	}
	info, err := MustPins().Info(pin)
	if err != nil {
		return err
	}
	return sendPinBus(info)
}

func handleQueryPins(*protocol.Decoder) error {
	owned := MustPins().Snapshot()
	for _, info := range owned {
		if err := sendPinBus(info); err != nil {
			return err
		}
	}
	return SendResponse("pins_done", func(e *protocol.Encoder) {
		e.Uint(uint32(len(owned)))
	})
}

func handleClearPin(args *protocol.Decoder) error {
	pin, err := decodePin(args)
	if err != nil {
		return err
	}
	cerr := MustPins().ClearPinBus(pin)
	if serr := SendResponse("pin_cleared", func(e *protocol.Encoder) {
		e.Uint(uint32(pin)).Bool(cerr == nil)
	}); serr != nil {
		return serr
	}
	return cerr
}

func handlePinMode(args *protocol.Decoder) error {
	pin, err := decodePin(args)
	if err != nil {
		return err
	}
	mode, err := args.Uint()
	if err != nil {
		return err
	}
	return SetPinMode(pin, PinMode(mode))
}

func handleDigitalWrite(args *protocol.Decoder) error {
	pin, err := decodePin(args)
	if err != nil {
		return err
	}
	v, err := args.Uint()
	if err != nil {
		return err
	}
	return DigitalWrite(pin, gpio.Level(v != 0))
}

func handleDigitalRead(args *protocol.Decoder) error {
	pin, err := decodePin(args)
	if err != nil {
		return err
	}
	level, err := DigitalRead(pin)
	if err != nil {
		return err
	}
	return SendResponse("digital_state", func(e *protocol.Encoder) {
		e.Uint(uint32(pin)).Bool(bool(level))
	})
}

func handleAnalogRead(args *protocol.Decoder) error {
	pin, err := decodePin(args)
	if err != nil {
		return err
	}
	v, err := AnalogRead(pin)
	if err != nil {
		return err
	}
	return SendResponse("analog_state", func(e *protocol.Encoder) {
		e.Uint(uint32(pin)).Uint(uint32(v))
	})
}
