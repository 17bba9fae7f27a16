package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/opd-ai/tickwire/packet"
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send echo packets to a server and wait for the replies",
	RunE:  runSend,
}

func init() {
	sendCmd.Flags().Uint16("port", 9001, "local UDP port")
	sendCmd.Flags().String("to", "127.0.0.1:9002", "server address")
	sendCmd.Flags().Int("count", 1, "number of packets to send")
	sendCmd.Flags().String("data", "hello", "payload carried by each packet")
	sendCmd.Flags().Duration("timeout", 0, "give up waiting for replies after this long (0 waits forever)")
}

func runSend(cmd *cobra.Command, _ []string) error {
	to, err := net.ResolveUDPAddr("udp", viper.GetString("to"))
	if err != nil {
		return fmt.Errorf("resolve %q: %w", viper.GetString("to"), err)
	}
	count := viper.GetInt("count")
	if count < 1 {
		return fmt.Errorf("count must be at least 1, got %d", count)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if timeout := viper.GetDuration("timeout"); timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var replies atomic.Int64
	builder, err := newBuilder(func(e Echo, from net.Addr, _ packet.Guarantee) error {
		n := replies.Add(1)
		fmt.Fprintf(cmd.OutOrStdout(), "reply %d from %s: %s\n", n, from, e.Data)
		if n >= int64(count) {
			cancel()
		}
		return nil
	})
	if err != nil {
		return err
	}

	sender, receiver, err := builder.Start(viper.GetUint16("port"))
	if err != nil {
		return err
	}
	defer builder.Close()

	b, err := echoBuilder([]byte(viper.GetString("data")))
	if err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		if err := sender.SendTo(to, b); err != nil {
			return err
		}
	}

	logrus.WithFields(logrus.Fields{
		"function": "runSend",
		"to":       to.String(),
		"count":    count,
	}).Info("Echo packets enqueued")

	if err := tickLoop(ctx, sender, receiver); err != nil {
		return err
	}
	if got := replies.Load(); got < int64(count) {
		return fmt.Errorf("received %d of %d replies", got, count)
	}
	return nil
}
