package factory

import (
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/tickwire/interfaces"
	"github.com/opd-ai/tickwire/simulation"
	"github.com/opd-ai/tickwire/transport"
)

// Validation constants for configuration bounds checking.
const (
	// MinIdleTimeout is the smallest accepted idle timeout.
	MinIdleTimeout = 100 * time.Millisecond
	// MaxIdleTimeout is the largest accepted idle timeout.
	MaxIdleTimeout = 10 * time.Minute
	// MaxHeartbeatInterval is the largest accepted heartbeat interval. Zero
	// disables heartbeats.
	MaxHeartbeatInterval = time.Minute
	// MinResendTimeout is the smallest accepted resend timeout.
	MinResendTimeout = 10 * time.Millisecond
	// MaxResendTimeout is the largest accepted resend timeout.
	MaxResendTimeout = 10 * time.Second
	// MinSendQueueSize is the smallest accepted send queue.
	MinSendQueueSize = 1
	// MaxSendQueueSize is the largest accepted send queue.
	MaxSendQueueSize = 1 << 20
)

// Environment variables read by LoadConfig and NewTransportFactory.
const (
	EnvUseSimulation     = "TICKWIRE_USE_SIMULATION"
	EnvIdleTimeout       = "TICKWIRE_IDLE_TIMEOUT"
	EnvHeartbeatInterval = "TICKWIRE_HEARTBEAT_INTERVAL"
	EnvResendTimeout     = "TICKWIRE_RESEND_TIMEOUT"
	EnvSendQueueSize     = "TICKWIRE_SEND_QUEUE_SIZE"
)

// TransportFactory binds either UDP or simulated transports. It implements
// interfaces.Factory and is safe for concurrent use.
type TransportFactory struct {
	mu            sync.RWMutex
	useSimulation bool
	hub           *simulation.Hub
	defaultConfig interfaces.Config
}

var _ interfaces.Factory = (*TransportFactory)(nil)

var (
	defaultHubOnce sync.Once
	defaultHub     *simulation.Hub
)

// DefaultHub returns the process-wide hub shared by every factory from
// NewTransportFactory, so simulated sessions in one process reach each other.
func DefaultHub() *simulation.Hub {
	defaultHubOnce.Do(func() {
		defaultHub = simulation.NewHub()
	})
	return defaultHub
}

// NewTransportFactory creates a factory from defaults and TICKWIRE_*
// environment overrides. It binds UDP transports unless
// TICKWIRE_USE_SIMULATION is true, in which case it binds on DefaultHub.
func NewTransportFactory() *TransportFactory {
	f := &TransportFactory{
		useSimulation: parseSimulationSetting(false),
		hub:           DefaultHub(),
		defaultConfig: LoadConfig(),
	}

	logrus.WithFields(logrus.Fields{
		"function":           "NewTransportFactory",
		"use_simulation":     f.useSimulation,
		"idle_timeout":       f.defaultConfig.IdleTimeout,
		"heartbeat_interval": f.defaultConfig.HeartbeatInterval,
		"resend_timeout":     f.defaultConfig.ResendTimeout,
		"send_queue_size":    f.defaultConfig.SendQueueSize,
	}).Info("Created transport factory with configuration")

	return f
}

// NewSimulationFactory creates a factory that binds on hub. A nil hub gets a
// fresh one.
func NewSimulationFactory(hub *simulation.Hub) *TransportFactory {
	if hub == nil {
		hub = simulation.NewHub()
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewSimulationFactory",
	}).Info("Creating simulation transport factory")

	return &TransportFactory{
		useSimulation: true,
		hub:           hub,
		defaultConfig: interfaces.DefaultConfig(),
	}
}

// LoadConfig returns interfaces.DefaultConfig with the TICKWIRE_* overrides
// applied. Unparseable or out-of-bounds values are logged and ignored.
func LoadConfig() interfaces.Config {
	config := interfaces.DefaultConfig()
	applyEnvironmentOverrides(&config)
	return config
}

// applyEnvironmentOverrides updates config from TICKWIRE_* variables.
func applyEnvironmentOverrides(config *interfaces.Config) {
	config.IdleTimeout = parseDurationSetting(EnvIdleTimeout, config.IdleTimeout, MinIdleTimeout, MaxIdleTimeout)
	config.HeartbeatInterval = parseDurationSetting(EnvHeartbeatInterval, config.HeartbeatInterval, 0, MaxHeartbeatInterval)
	config.ResendTimeout = parseDurationSetting(EnvResendTimeout, config.ResendTimeout, MinResendTimeout, MaxResendTimeout)
	config.SendQueueSize = parseIntSetting(EnvSendQueueSize, config.SendQueueSize, MinSendQueueSize, MaxSendQueueSize)

	if config.HeartbeatInterval >= config.IdleTimeout {
		logrus.WithFields(logrus.Fields{
			"function":           "applyEnvironmentOverrides",
			"idle_timeout":       config.IdleTimeout,
			"heartbeat_interval": config.HeartbeatInterval,
		}).Warn("Heartbeat interval not shorter than idle timeout, disabling heartbeats")
		config.HeartbeatInterval = 0
	}
}

// parseSimulationSetting reads TICKWIRE_USE_SIMULATION, keeping current on
// a parse failure.
func parseSimulationSetting(current bool) bool {
	value := os.Getenv(EnvUseSimulation)
	if value == "" {
		return current
	}

	useSim, err := strconv.ParseBool(value)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "parseSimulationSetting",
			"env_var":     EnvUseSimulation,
			"value":       value,
			"error":       err.Error(),
			"using_value": current,
		}).Warn("Failed to parse TICKWIRE_USE_SIMULATION environment variable, using default")
		return current
	}
	return useSim
}

// parseDurationSetting reads a duration such as "250ms" from key and checks
// it against [min, max].
func parseDurationSetting(key string, current, min, max time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return current
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "parseDurationSetting",
			"env_var":     key,
			"value":       value,
			"error":       err.Error(),
			"using_value": current,
		}).Warn("Failed to parse duration environment variable, using default")
		return current
	}
	if d < min || d > max {
		logrus.WithFields(logrus.Fields{
			"function":    "parseDurationSetting",
			"env_var":     key,
			"value":       d,
			"min":         min,
			"max":         max,
			"using_value": current,
		}).Warn("Duration environment variable out of bounds, using default")
		return current
	}
	return d
}

// parseIntSetting reads an integer from key and checks it against [min, max].
func parseIntSetting(key string, current, min, max int) int {
	value := os.Getenv(key)
	if value == "" {
		return current
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "parseIntSetting",
			"env_var":     key,
			"value":       value,
			"error":       err.Error(),
			"using_value": current,
		}).Warn("Failed to parse integer environment variable, using default")
		return current
	}
	if n < min || n > max {
		logrus.WithFields(logrus.Fields{
			"function":    "parseIntSetting",
			"env_var":     key,
			"value":       n,
			"min":         min,
			"max":         max,
			"using_value": current,
		}).Warn("Integer environment variable out of bounds, using default")
		return current
	}
	return n
}

// Bind binds a transport on addr with the backend currently selected.
func (f *TransportFactory) Bind(addr string, config interfaces.Config) (interfaces.Transport, error) {
	f.mu.RLock()
	useSimulation := f.useSimulation
	hub := f.hub
	f.mu.RUnlock()

	logrus.WithFields(logrus.Fields{
		"function":       "TransportFactory.Bind",
		"addr":           addr,
		"use_simulation": useSimulation,
	}).Debug("Binding transport")

	if useSimulation {
		return hub.Factory().Bind(addr, config)
	}
	return transport.Factory.Bind(addr, config)
}

// DefaultConfig returns the transport configuration the factory was
// created with, environment overrides included.
func (f *TransportFactory) DefaultConfig() interfaces.Config {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.defaultConfig
}

// Hub returns the hub simulated transports are bound on.
func (f *TransportFactory) Hub() *simulation.Hub {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.hub
}

// SwitchToSimulation makes later binds use the simulation hub.
func (f *TransportFactory) SwitchToSimulation() {
	f.mu.Lock()
	defer f.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "SwitchToSimulation",
		"previous": f.useSimulation,
	}).Info("Switching factory to simulation mode")

	f.useSimulation = true
}

// SwitchToReal makes later binds use UDP.
func (f *TransportFactory) SwitchToReal() {
	f.mu.Lock()
	defer f.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "SwitchToReal",
		"previous": f.useSimulation,
	}).Info("Switching factory to real mode")

	f.useSimulation = false
}

// IsUsingSimulation reports whether binds go to the simulation hub.
func (f *TransportFactory) IsUsingSimulation() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.useSimulation
}
