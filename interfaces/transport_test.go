package interfaces

import (
	"errors"
	"testing"
	"time"
)

// TestConfigValidate tests the Validate method of Config.
func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:    "default config",
			mutate:  func(*Config) {},
			wantErr: nil,
		},
		{
			name:    "heartbeats disabled",
			mutate:  func(c *Config) { c.HeartbeatInterval = 0 },
			wantErr: nil,
		},
		{
			name:    "zero idle timeout",
			mutate:  func(c *Config) { c.IdleTimeout = 0 },
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "heartbeat not shorter than idle timeout",
			mutate:  func(c *Config) { c.HeartbeatInterval = c.IdleTimeout },
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "negative heartbeat",
			mutate:  func(c *Config) { c.HeartbeatInterval = -time.Second },
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "zero resend timeout",
			mutate:  func(c *Config) { c.ResendTimeout = 0 },
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "zero send queue",
			mutate:  func(c *Config) { c.SendQueueSize = 0 },
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "zero ordered buffer",
			mutate:  func(c *Config) { c.MaxOrderedBuffer = 0 },
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "zero duplicate window",
			mutate:  func(c *Config) { c.DuplicateWindow = 0 },
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "largest windows",
			mutate:  func(c *Config) { c.DuplicateWindow, c.MaxOrderedBuffer = MaxWindow, MaxWindow },
			wantErr: nil,
		},
		{
			name:    "duplicate window reaching half the id space",
			mutate:  func(c *Config) { c.DuplicateWindow = 1 << 15 },
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "ordered buffer reaching half the index space",
			mutate:  func(c *Config) { c.MaxOrderedBuffer = 1 << 15 },
			wantErr: ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(&config)
			err := config.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

// TestReliabilityClassification tests the Reliability predicates.
func TestReliabilityClassification(t *testing.T) {
	tests := []struct {
		r         Reliability
		reliable  bool
		sequenced bool
		ordered   bool
		name      string
	}{
		{Unreliable, false, false, false, "unreliable"},
		{UnreliableSequenced, false, true, false, "unreliable_sequenced"},
		{ReliableUnordered, true, false, false, "reliable_unordered"},
		{ReliableSequenced, true, true, false, "reliable_sequenced"},
		{ReliableOrdered, true, false, true, "reliable_ordered"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.r.Valid() {
				t.Error("expected valid reliability")
			}
			if tt.r.IsReliable() != tt.reliable {
				t.Errorf("IsReliable = %v, want %v", tt.r.IsReliable(), tt.reliable)
			}
			if tt.r.IsSequenced() != tt.sequenced {
				t.Errorf("IsSequenced = %v, want %v", tt.r.IsSequenced(), tt.sequenced)
			}
			if tt.r.IsOrdered() != tt.ordered {
				t.Errorf("IsOrdered = %v, want %v", tt.r.IsOrdered(), tt.ordered)
			}
			if tt.r.String() != tt.name {
				t.Errorf("String = %q, want %q", tt.r.String(), tt.name)
			}
		})
	}

	if Reliability(42).Valid() {
		t.Error("unknown reliability reported as valid")
	}
}

// TestFactoryFunc tests that FactoryFunc forwards its arguments.
func TestFactoryFunc(t *testing.T) {
	sentinel := errors.New("bind failed")
	var gotAddr string
	var gotConfig Config

	factory := FactoryFunc(func(addr string, config Config) (Transport, error) {
		gotAddr = addr
		gotConfig = config
		return nil, sentinel
	})

	config := DefaultConfig()
	_, err := factory.Bind("127.0.0.1:9001", config)
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	if gotAddr != "127.0.0.1:9001" || gotConfig != config {
		t.Errorf("arguments not forwarded: %q %+v", gotAddr, gotConfig)
	}
}
