package factory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/tickwire/interfaces"
	"github.com/opd-ai/tickwire/simulation"
	"github.com/opd-ai/tickwire/transport"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{EnvIdleTimeout, EnvHeartbeatInterval, EnvResendTimeout, EnvSendQueueSize} {
		t.Setenv(key, "")
	}

	assert.Equal(t, interfaces.DefaultConfig(), LoadConfig())
}

func TestEnvironmentVariableParsing(t *testing.T) {
	defaults := interfaces.DefaultConfig()

	tests := []struct {
		name     string
		envKey   string
		envValue string
		check    func(interfaces.Config) bool
	}{
		{
			name:     "valid_idle_timeout",
			envKey:   EnvIdleTimeout,
			envValue: "30s",
			check:    func(c interfaces.Config) bool { return c.IdleTimeout == 30*time.Second },
		},
		{
			name:     "idle_timeout_at_minimum",
			envKey:   EnvIdleTimeout,
			envValue: "100ms",
			// heartbeat of 1s is no longer below the idle timeout
			check: func(c interfaces.Config) bool { return c.IdleTimeout == MinIdleTimeout && c.HeartbeatInterval == 0 },
		},
		{
			name:     "idle_timeout_below_minimum",
			envKey:   EnvIdleTimeout,
			envValue: "50ms",
			check:    func(c interfaces.Config) bool { return c.IdleTimeout == defaults.IdleTimeout },
		},
		{
			name:     "idle_timeout_above_maximum",
			envKey:   EnvIdleTimeout,
			envValue: "11m",
			check:    func(c interfaces.Config) bool { return c.IdleTimeout == defaults.IdleTimeout },
		},
		{
			name:     "invalid_idle_timeout",
			envKey:   EnvIdleTimeout,
			envValue: "soon",
			check:    func(c interfaces.Config) bool { return c.IdleTimeout == defaults.IdleTimeout },
		},
		{
			name:     "heartbeat_disabled",
			envKey:   EnvHeartbeatInterval,
			envValue: "0s",
			check:    func(c interfaces.Config) bool { return c.HeartbeatInterval == 0 },
		},
		{
			name:     "heartbeat_negative",
			envKey:   EnvHeartbeatInterval,
			envValue: "-1s",
			check:    func(c interfaces.Config) bool { return c.HeartbeatInterval == defaults.HeartbeatInterval },
		},
		{
			name:     "valid_resend_timeout",
			envKey:   EnvResendTimeout,
			envValue: "250ms",
			check:    func(c interfaces.Config) bool { return c.ResendTimeout == 250*time.Millisecond },
		},
		{
			name:     "resend_timeout_above_maximum",
			envKey:   EnvResendTimeout,
			envValue: "1m",
			check:    func(c interfaces.Config) bool { return c.ResendTimeout == defaults.ResendTimeout },
		},
		{
			name:     "valid_send_queue_size",
			envKey:   EnvSendQueueSize,
			envValue: "64",
			check:    func(c interfaces.Config) bool { return c.SendQueueSize == 64 },
		},
		{
			name:     "send_queue_size_zero",
			envKey:   EnvSendQueueSize,
			envValue: "0",
			check:    func(c interfaces.Config) bool { return c.SendQueueSize == defaults.SendQueueSize },
		},
		{
			name:     "invalid_send_queue_size",
			envKey:   EnvSendQueueSize,
			envValue: "many",
			check:    func(c interfaces.Config) bool { return c.SendQueueSize == defaults.SendQueueSize },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.envKey, tt.envValue)

			config := LoadConfig()
			assert.True(t, tt.check(config), "%s=%q gave %+v", tt.envKey, tt.envValue, config)
			assert.NoError(t, config.Validate())
		})
	}
}

func TestSimulationSetting(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"true", true},
		{"false", false},
		{"1", true},
		{"invalid", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv(EnvUseSimulation, tt.value)
			assert.Equal(t, tt.want, NewTransportFactory().IsUsingSimulation())
		})
	}
}

func TestBindSelectsBackend(t *testing.T) {
	t.Setenv(EnvUseSimulation, "false")
	f := NewTransportFactory()

	udp, err := f.Bind("127.0.0.1:0", f.DefaultConfig())
	require.NoError(t, err)
	defer udp.Close()
	assert.IsType(t, &transport.UDPTransport{}, udp)

	f.SwitchToSimulation()
	assert.True(t, f.IsUsingSimulation())

	endpoints := f.Hub().Stats().Endpoints
	sim, err := f.Bind("127.0.0.1:9001", f.DefaultConfig())
	require.NoError(t, err)
	defer sim.Close()
	assert.IsType(t, &simulation.Transport{}, sim)
	assert.Equal(t, endpoints+1, f.Hub().Stats().Endpoints)

	f.SwitchToReal()
	assert.False(t, f.IsUsingSimulation())
}

func TestSimulationFactorySharesHub(t *testing.T) {
	hub := simulation.NewHub()
	a := NewSimulationFactory(hub)
	b := NewSimulationFactory(hub)

	_, err := a.Bind("127.0.0.1:9001", interfaces.DefaultConfig())
	require.NoError(t, err)

	_, err = b.Bind("127.0.0.1:9001", interfaces.DefaultConfig())
	assert.ErrorIs(t, err, simulation.ErrAddressInUse)

	assert.NotNil(t, NewSimulationFactory(nil).Hub())
}

func TestEnvironmentFactoriesShareDefaultHub(t *testing.T) {
	t.Setenv(EnvUseSimulation, "true")
	a := NewTransportFactory()
	b := NewTransportFactory()

	assert.Same(t, DefaultHub(), a.Hub())
	assert.Same(t, a.Hub(), b.Hub())

	first, err := a.Bind("127.0.0.1:9011", a.DefaultConfig())
	require.NoError(t, err)
	defer first.Close()

	_, err = b.Bind("127.0.0.1:9011", b.DefaultConfig())
	assert.ErrorIs(t, err, simulation.ErrAddressInUse)
}
