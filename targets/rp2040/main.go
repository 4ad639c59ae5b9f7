//go:build rp2040

// Command rp2040 is the diagnostic firmware for RP2040 boards. It answers
// pin ownership queries over USB and brings up the board's default
// peripherals at boot.
package main

import (
	"machine"
	"strings"

	"gohal/board"
	"gohal/core"
	"gohal/debug"
	"gohal/periman"
	"gohal/protocol"
	"gohal/targets/pio"
)

// Log output goes to UART1 TX on GPIO8 so it never mixes with the protocol
const (
	logPort = 1
	logTX   = 8
	logBaud = 115200
)

func main() {
	// a previous watchdog setup may survive a soft reset
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0}); err != nil {
		return
	}
	machine.Serial.Configure(machine.UARTConfig{})

	core.SetClockSource(GetHardwareUptime)
	core.SetPinRegistry(periman.New(periman.RP2040))
	core.SetGPIODriver(NewGPIODriver())
	core.SetADCDriver(NewADCDriver())
	core.SetI2CDriver(NewI2CDriver())
	core.SetSPIDriver(NewSPIDriver())
	core.SetUARTDriver(NewUARTDriver())
	core.SetLEDCDriver(NewLEDCDriver())
	core.SetRMTDriver(pio.NewRMTDriver())

	startLog()

	core.InitCoreCommands()
	core.RegisterChipConstants(periman.RP2040)

	sess := protocol.NewSession(usbLink{}, core.HandleCommand)
	sess.OnHostReset = func() {
		// runs on the USB path, keep it off the UART
		debug.Async("host reconnected")
	}
	core.SetResponder(sess)

	b, err := board.Apply(board.DefaultConfig(periman.RP2040))
	if err != nil {
		debug.Errorf("board %s: %v", b.Config.Name, err)
	}
	if debug.Enabled(debug.LevelDebug) {
		var report strings.Builder
		core.MustPins().Report(&report)
		debug.Println(report.String())
	}

	serveUSB(sess)
}

// startLog claims the log UART like any other peripheral, so the pin shows
// up as UART_TX in pin reports.
func startLog() {
	port, err := core.UART(logPort)
	if err != nil {
		return
	}
	cfg := core.UARTConfig{Baud: logBaud}
	if err := port.Begin(cfg, periman.NoPin, logTX, periman.NoPin, periman.NoPin); err != nil {
		return
	}
	debug.SetWriter(func(msg string) {
		port.Write([]byte(msg + "\r\n"))
	})
	debug.InitAsync(16)
}
