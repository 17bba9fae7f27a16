// Package factory selects the transport backend a socket binds with.
//
// The factory abstracts the creation of transports, allowing seamless
// switching between the in-process simulation (for testing) and the UDP
// backend without changing consuming code. A TransportFactory implements
// interfaces.Factory, so it can be handed to socket.Bind or
// tickwire.Builder.StartAs directly.
//
// # Configuration
//
// The factory supports configuration via environment variables:
//   - TICKWIRE_USE_SIMULATION: "true" or "false" to enable simulation mode
//   - TICKWIRE_IDLE_TIMEOUT: duration such as "5s", within [100ms, 10m]
//   - TICKWIRE_HEARTBEAT_INTERVAL: duration within [0, 1m], 0 disables
//   - TICKWIRE_RESEND_TIMEOUT: duration within [10ms, 10s]
//   - TICKWIRE_SEND_QUEUE_SIZE: integer within [1, 1048576]
//
// Values that fail to parse or fall outside their bounds are logged at warn
// level and the default is kept.
//
// # Usage
//
//	f := factory.NewTransportFactory()
//	tr, err := f.Bind("127.0.0.1:9001", f.DefaultConfig())
//
// For tests, bind every endpoint on one hub:
//
//	hub := simulation.NewHub()
//	f := factory.NewSimulationFactory(hub)
package factory
