// Command gohal-host talks to a board's diagnostic console: it lists pin
// ownership and sends any command the board's dictionary describes.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/pkg/errors"

	"gohal/host/mcu"
	"gohal/host/serial"
)

var (
	device  = flag.String("device", "/dev/ttyUSB0", "Serial device path, or tcp:host:port")
	baud    = flag.Int("baud", serial.DefaultBaud, "Baud rate (ignored for USB CDC)")
	timeout = flag.Duration("timeout", time.Second, "Per-command timeout")
	settle  = flag.Duration("settle", 200*time.Millisecond, "How long to wait for responses to a raw command")
)

// connect opens a serial device, or a TCP address given as tcp:host:port
func connect(dev string) (*mcu.MCU, error) {
	if addr, ok := strings.CutPrefix(dev, "tcp:"); ok {
		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		defer cancel()
		return mcu.Dial(ctx, addr)
	}
	cfg := serial.DefaultConfig(dev)
	cfg.Baud = *baud
	return mcu.Connect(cfg)
}

func main() {
	flag.Parse()

	board, err := connect(*device)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer board.Close()
	board.Timeout = *timeout

	if err := board.Identify(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	d := board.Dictionary()
	fmt.Printf("Connected to %s (%s), %d commands\n", d.Config["MCU"], d.Version, len(d.Commands))

	// one-shot mode: gohal-host [flags] pins
	if flag.NArg() > 0 {
		if err := run(os.Stdout, board, flag.Args()); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	fmt.Println("Enter commands ('help' for a list, 'quit' to exit):")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		args, err := shlex.Split(scanner.Text())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		if len(args) == 0 {
			continue
		}
		if args[0] == "quit" || args[0] == "exit" || args[0] == "q" {
			return
		}
		if err := run(os.Stdout, board, args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}
}

func run(w io.Writer, board *mcu.MCU, args []string) error {
	ctx := context.Background()
	switch args[0] {
	case "help", "?":
		printHelp(w)
	case "dict":
		printDictionary(w, board)
	case "raw":
		fmt.Fprintf(w, "%s\n", board.RawDictionary())
	case "pins":
		pins, err := board.QueryPins(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "GPIO Info:")
		for _, p := range pins {
			fmt.Fprintf(w, "  %s\n", p)
		}
	case "pin", "clear":
		if len(args) != 2 {
			return errors.Errorf("usage: %s <pin>", args[0])
		}
		pin, err := strconv.Atoi(args[1])
		if err != nil {
			return errors.Wrap(err, "pin")
		}
		if args[0] == "clear" {
			return board.ClearPin(ctx, pin)
		}
		p, err := board.QueryPin(ctx, pin)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, p)
	default:
		return sendRaw(ctx, w, board, args)
	}
	return nil
}

// sendRaw sends "name key=value ..." and prints whatever comes back
func sendRaw(ctx context.Context, w io.Writer, board *mcu.MCU, args []string) error {
	params := make(map[string]string, len(args)-1)
	for _, a := range args[1:] {
		k, v, ok := strings.Cut(a, "=")
		if !ok {
			return errors.Errorf("argument %q is not key=value", a)
		}
		params[k] = v
	}
	if err := board.Send(ctx, args[0], params); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, *settle)
	defer cancel()
	for {
		r, err := board.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		fmt.Fprintf(w, "%s %s\n", r.Name, formatArgs(r.Args))
	}
}

func formatArgs(args map[string]interface{}) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		switch v := args[k].(type) {
		case []byte:
			parts[i] = fmt.Sprintf("%s=%q", k, v)
		default:
			parts[i] = fmt.Sprintf("%s=%v", k, v)
		}
	}
	return strings.Join(parts, " ")
}

func printDictionary(w io.Writer, board *mcu.MCU) {
	d := board.Dictionary()
	fmt.Fprintf(w, "Version: %s\nBuild: %s\n", d.Version, d.BuildVersions)
	fmt.Fprintln(w, "Config:")
	for _, k := range sortedKeys(d.Config) {
		fmt.Fprintf(w, "  %s = %s\n", k, d.Config[k])
	}
	fmt.Fprintln(w, "Commands:")
	for _, k := range sortedKeys(d.Commands) {
		fmt.Fprintf(w, "  [%d] %s\n", d.Commands[k], k)
	}
	fmt.Fprintln(w, "Responses:")
	for _, k := range sortedKeys(d.Responses) {
		fmt.Fprintf(w, "  [%d] %s\n", d.Responses[k], k)
	}
	for name, values := range d.Enumerations {
		fmt.Fprintf(w, "Enumeration %s: %d values\n", name, len(values))
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func printHelp(w io.Writer) {
	fmt.Fprintln(w, `Available commands:
  help                 Show this help message
  dict                 Print the dictionary
  raw                  Print the raw dictionary JSON
  pins                 List owned pins
  pin <n>              Show the owner of pin n
  clear <n>            Release pin n
  <name> [k=v ...]     Send any dictionary command, e.g. pin_mode pin=2 mode=1
  quit                 Exit`)
}
