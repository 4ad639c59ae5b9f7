package core

import (
	"sync"

	"github.com/pkg/errors"

	"gohal/protocol"
)

// ErrUnknownCommand is returned for ids with no registered handler
var ErrUnknownCommand = errors.New("unknown command")

// CommandHandler decodes its own arguments from args
type CommandHandler func(args *protocol.Decoder) error

// Command is one entry of the message dictionary. Responses have no handler.
type Command struct {
	ID      uint16
	Name    string
	Format  string // "pin=%c value=%c"
	Handler CommandHandler
}

// Key returns "name format", the dictionary key
func (c *Command) Key() string {
	if c.Format == "" {
		return c.Name
	}
	return c.Name + " " + c.Format
}

// CommandRegistry assigns ids in registration order
type CommandRegistry struct {
	mu       sync.RWMutex
	commands []*Command
	byName   map[string]*Command
}

var globalRegistry = NewCommandRegistry()

// NewCommandRegistry creates an empty registry
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{byName: make(map[string]*Command)}
}

// GetGlobalRegistry returns the firmware's registry
func GetGlobalRegistry() *CommandRegistry {
	return globalRegistry
}

// RegisterCommand adds a host->device command to the global registry
func RegisterCommand(name, format string, handler CommandHandler) uint16 {
	return globalRegistry.Register(name, format, handler)
}

// RegisterResponse adds a device->host message to the global registry
func RegisterResponse(name, format string) uint16 {
	return globalRegistry.Register(name, format, nil)
}

// Register adds a command. Registering a name twice returns the first id.
func (r *CommandRegistry) Register(name, format string, handler CommandHandler) uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.byName[name]; ok {
		return c.ID
	}
	c := &Command{ID: uint16(len(r.commands)), Name: name, Format: format, Handler: handler}
	r.commands = append(r.commands, c)
	r.byName[name] = c
	return c.ID
}

// Lookup finds a command by name
func (r *CommandRegistry) Lookup(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byName[name]
	return c, ok
}

// Get finds a command by id
func (r *CommandRegistry) Get(id uint16) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.commands) {
		return nil, false
	}
	return r.commands[id], true
}

// Count returns the number of entries
func (r *CommandRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// Dispatch runs the handler for id
func (r *CommandRegistry) Dispatch(id uint16, args *protocol.Decoder) error {
	c, ok := r.Get(id)
	if !ok || c.Handler == nil {
		return errors.Wrapf(ErrUnknownCommand, "id %d", id)
	}
	return errors.Wrap(c.Handler(args), c.Name)
}

// Split returns the dictionary's "commands" and "responses" maps
func (r *CommandRegistry) Split() (commands, responses map[string]int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	commands = make(map[string]int)
	responses = make(map[string]int)
	for _, c := range r.commands {
		if c.Handler != nil {
			commands[c.Key()] = int(c.ID)
		} else {
			responses[c.Key()] = int(c.ID)
		}
	}
	return commands, responses
}

// Names lists registered names in id order
func (r *CommandRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.commands))
	for i, c := range r.commands {
		names[i] = c.Name
	}
	return names
}
