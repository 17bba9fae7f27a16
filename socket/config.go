package socket

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/opd-ai/tickwire/interfaces"
)

// Config holds the settings of a Socket.
type Config struct {
	// Transport is passed to the factory when binding.
	Transport interfaces.Config

	// IdleInterval is how long a worker sleeps when it found nothing to do.
	IdleInterval time.Duration

	// Clock supplies the time handed to ManualPoll and drives idle sleeps.
	Clock clock.Clock
}

// DefaultConfig returns the default socket configuration.
//
// Default Value Rationale:
//   - IdleInterval: 1ms - well under one simulation tick at 60Hz
//   - Clock: wall clock
func DefaultConfig() Config {
	return Config{
		Transport:    interfaces.DefaultConfig(),
		IdleInterval: time.Millisecond,
		Clock:        clock.New(),
	}
}

// Validate checks that the configuration can drive a socket.
func (c Config) Validate() error {
	if c.IdleInterval <= 0 {
		return fmt.Errorf("idle interval must be positive, got %v", c.IdleInterval)
	}
	if c.Clock == nil {
		return fmt.Errorf("clock must be set")
	}
	return c.Transport.Validate()
}
