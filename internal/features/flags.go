package features

import (
	"fmt"
	"sync"

	"github.com/codefionn/langsock/internal/protocol"
)

// FeatureFlags manages which commands the server answers.
// This structure is NOT persisted to disk - it's in-memory only.
// Every known command starts enabled.
type FeatureFlags struct {
	mu       sync.RWMutex
	disabled map[protocol.Command]bool
}

// NewFeatureFlags creates a new FeatureFlags instance with all commands enabled
func NewFeatureFlags() *FeatureFlags {
	return &FeatureFlags{disabled: make(map[protocol.Command]bool)}
}

// FromDisabled creates flags with the named commands disabled. Unknown names
// are an error so that a typo in the configuration does not go unnoticed.
func FromDisabled(names []string) (*FeatureFlags, error) {
	f := NewFeatureFlags()
	for _, name := range names {
		cmd, err := protocol.ParseCommand(name)
		if err != nil {
			return nil, fmt.Errorf("cannot disable %q: %w", name, err)
		}
		f.disabled[cmd] = true
	}
	return f, nil
}

// IsEnabled checks if a command is enabled
func (f *FeatureFlags) IsEnabled(cmd protocol.Command) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return !f.disabled[cmd]
}

// Enable enables a specific command
func (f *FeatureFlags) Enable(cmd protocol.Command) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.disabled, cmd)
}

// Disable disables a specific command. Unknown commands are ignored.
func (f *FeatureFlags) Disable(cmd protocol.Command) {
	if !cmd.Valid() {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disabled[cmd] = true
}

// EnableAll sets all commands to enabled
func (f *FeatureFlags) EnableAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	clear(f.disabled)
}

// Disabled returns the disabled commands in protocol order.
func (f *FeatureFlags) Disabled() []protocol.Command {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var out []protocol.Command
	for _, cmd := range protocol.Commands() {
		if f.disabled[cmd] {
			out = append(out, cmd)
		}
	}
	return out
}
