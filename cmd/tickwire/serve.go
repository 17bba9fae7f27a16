package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/opd-ai/tickwire"
	"github.com/opd-ai/tickwire/packet"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run an echo server",
	Long:  `Run a server that sends every echo packet back to where it came from. Set --metrics-addr to expose Prometheus metrics at /metrics.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().Uint16("port", 9002, "UDP port to listen on")
	serveCmd.Flags().String("metrics-addr", "", "address for the /metrics endpoint (disabled when empty)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var sender *tickwire.Sender
	builder, err := newBuilder(func(e Echo, from net.Addr, g packet.Guarantee) error {
		b, err := echoBuilder(e.Data)
		if err != nil {
			return err
		}
		return sender.SendTo(from, b)
	})
	if err != nil {
		return err
	}

	sender, receiver, err := builder.Start(viper.GetUint16("port"))
	if err != nil {
		return err
	}
	defer builder.Close()

	if addr := viper.GetString("metrics-addr"); addr != "" {
		srv := serveMetrics(addr, builder)
		defer srv.Close()
	}

	logrus.WithFields(logrus.Fields{
		"function":   "runServe",
		"local_addr": builder.LocalAddr().String(),
	}).Info("Echo server running")

	return tickLoop(ctx, sender, receiver)
}

// tickLoop drains receiver every tick until ctx is done, then stops the
// session and drains until the final stop event was applied.
func tickLoop(ctx context.Context, sender *tickwire.Sender, receiver *tickwire.Receiver) error {
	ticker := time.NewTicker(viper.GetDuration("tick"))
	defer ticker.Stop()

	done := ctx.Done()
	for !receiver.Stopped() {
		select {
		case <-done:
			sender.Stop()
			done = nil
		case <-ticker.C:
		}

		if err := receiver.Drain(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "tickLoop",
				"error":    err.Error(),
			}).Warn("Drain reported packet errors")
		}
	}

	logrus.WithFields(logrus.Fields{
		"function": "tickLoop",
		"stats":    receiver.Stats(),
	}).Info("Session stopped")

	return nil
}

func serveMetrics(addr string, builder *tickwire.Builder) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		builder.WriteMetrics(w)
		metrics.WritePrometheus(w, true)
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithFields(logrus.Fields{
				"function": "serveMetrics",
				"addr":     addr,
				"error":    err.Error(),
			}).Error("Metrics endpoint failed")
		}
	}()

	return srv
}
