// Command gohal-linux serves the pin ownership console of a Raspberry Pi
// over TCP. Connect with gohal-host -device tcp:host:7300.
package main

import (
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"

	"gohal/board"
	"gohal/core"
	"gohal/debug"
	"gohal/periman"
	"gohal/targets/linux"
)

var (
	listen     = flag.String("listen", ":7300", "Address to serve the console on")
	configPath = flag.String("config", "", "Board description (JSON); default wiring if empty")
	logLevel   = flag.String("log", "", "Log level, overrides the board description")
)

func loadConfig() (*board.Config, error) {
	if *configPath == "" {
		return board.DefaultConfig(periman.BCM2835), nil
	}
	data, err := os.ReadFile(*configPath)
	if err != nil {
		return nil, err
	}
	return board.LoadConfig(data)
}

func main() {
	flag.Parse()
	debug.SetWriter(func(msg string) { log.Println(msg) })

	config, err := loadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *logLevel != "" {
		config.LogLevel = *logLevel
	}
	chip := config.ChipInfo()
	if chip.Name != periman.BCM2835.Name {
		log.Fatalf("config: chip %s cannot be driven from Linux", config.Chip)
	}

	if err := linux.Init(); err != nil {
		log.Fatal(err)
	}
	core.SetPinRegistry(periman.New(chip))
	core.InitCoreCommands()
	core.RegisterChipConstants(chip)

	b, err := board.Apply(config)
	if err != nil {
		log.Printf("board %s: %v", config.Name, err)
	}
	defer b.Close()
	core.MustPins().Report(os.Stderr)

	ln, err := net.Listen("tcp", *listen)
	if err != nil {
		log.Fatal(err)
	}
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stop
		ln.Close()
	}()

	log.Printf("serving %s on %s", config.Name, ln.Addr())
	for {
		conn, err := ln.Accept()
		if errors.Is(err, net.ErrClosed) {
			// releases every pin through b.Close
			return
		}
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("host connected from %s", conn.RemoteAddr())
		if err := linux.ServeConn(conn); err != nil {
			log.Printf("%v", err)
		}
		conn.Close()
	}
}
