package main

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/opd-ai/tickwire"
	"github.com/opd-ai/tickwire/kind"
	"github.com/opd-ai/tickwire/packet"
)

const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "tickwire",
	Short: "tick-friendly UDP echo demo",
	Long: fmt.Sprintf(`tickwire (v%s)

Echo server and client built on the tickwire networking layer. Packets are
sent from a lock-free queue and received events are drained once per tick.`, Version),
	PersistentPreRunE: processConfig,
	SilenceUsage:      true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of tickwire",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tickwire v%s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("host", "127.0.0.1", "local address to bind")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Duration("tick", 16*time.Millisecond, "interval between receiver drains")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(versionCmd)
}

// initConfig loads .env files and maps TICKWIRE_* variables onto flags.
func initConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("tickwire")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func processConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	level, err := logrus.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", viper.GetString("log-level"), err)
	}
	logrus.SetLevel(level)

	if viper.GetDuration("tick") <= 0 {
		return fmt.Errorf("tick must be positive, got %v", viper.GetDuration("tick"))
	}

	return nil
}

// Echo is the only kind the demo exchanges.
type Echo struct {
	Data []byte
}

func (Echo) KindID() string { return "echo" }

// newBuilder registers Echo with process and returns a builder bound to the
// configured host.
func newBuilder(process func(Echo, net.Addr, packet.Guarantee) error) (*tickwire.Builder, error) {
	registry := kind.NewRegistry()
	if err := kind.RegisterKind(registry, process); err != nil {
		return nil, err
	}

	options := tickwire.NewOptions()
	options.Host = viper.GetString("host")

	return tickwire.NewBuilder(registry, options).WithDefaultProcessors(), nil
}

func echoBuilder(data []byte) (packet.Builder, error) {
	payload, err := packet.PayloadFrom(Echo{Data: data})
	if err != nil {
		return packet.Builder{}, err
	}
	return packet.NewBuilder(packet.ReliableOrdered, payload), nil
}
