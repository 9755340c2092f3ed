package main

import (
	"hdsfetch/internal/config"
	"hdsfetch/internal/logger"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Populated by PersistentPreRunE before any command runs.
var (
	cfg *config.Config
	log logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "hdsfetch [flags] <media-path>...",
	Short: "Download Adobe HDS presentations into FLV files",
	Long: `hdsfetch downloads on-demand video served over HTTP Dynamic Streaming.

Each media path is resolved against the base URL, its manifest and
bootstrap are fetched, and every fragment is appended to one FLV file.
The output defaults to the last element of the media path with an .flv
extension; "-" writes to standard output.`,
	Args:          cobra.MinimumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := lo.Must(cmd.Flags().GetString("config"))
		if err := config.Setup(viper.GetViper(), path); err != nil {
			return err
		}
		loaded, err := config.LoadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		cfg = loaded
		log = logger.NewLogger(logger.Options{Level: cfg.LogLevel, JSON: cfg.LogJSON})
		log.Debugf("Configuration loaded from %q", viper.ConfigFileUsed())
		return nil
	},
	RunE: runFetch,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "Path to a config file (toml, yaml or json)")

	flags.StringP("log-level", "L", "info", "Log level (error, warn, info, debug)")
	lo.Must0(viper.BindPFlag(config.KeyLogLevel, flags.Lookup("log-level")))
	flags.Bool("log-json", false, "Write logs as JSON")
	lo.Must0(viper.BindPFlag(config.KeyLogJSON, flags.Lookup("log-json")))

	flags.String("user-agent", "", "User-Agent header sent with every request")
	lo.Must0(viper.BindPFlag(config.KeyUserAgent, flags.Lookup("user-agent")))
	flags.Duration("timeout", 0, "Connect and I/O timeout")
	lo.Must0(viper.BindPFlag(config.KeyTimeout, flags.Lookup("timeout")))
	flags.String("socks-proxy", "", "SOCKS5 proxy as host:port")
	lo.Must0(viper.BindPFlag(config.KeySOCKSProxy, flags.Lookup("socks-proxy")))
	flags.String("tls-fingerprint", "", "TLS client hello fingerprint (chrome, go)")
	lo.Must0(viper.BindPFlag(config.KeyTLSFingerprint, flags.Lookup("tls-fingerprint")))

	flags.String("player-id", "", "Player identifier for player verification")
	lo.Must0(viper.BindPFlag(config.KeyPlayerID, flags.Lookup("player-id")))
	flags.String("player-key", "", "Hex encoded HMAC key for player verification")
	lo.Must0(viper.BindPFlag(config.KeyPlayerKey, flags.Lookup("player-key")))
	flags.StringP("base-url", "b", "", "Streaming host that media paths are resolved against")
	lo.Must0(viper.BindPFlag(config.KeyBaseURL, flags.Lookup("base-url")))

	rootCmd.Flags().StringP("output", "o", "", `Output file, "-" for standard output (single media path only)`)
	rootCmd.Flags().StringP("token", "t", "", "Delivery token sent as the hdnea manifest parameter")
	rootCmd.Flags().IntP("parallel", "j", 1, "Number of downloads to run at once")
	rootCmd.Flags().String("status-addr", "", "Serve download status as JSON on this address (e.g. :8080)")

	rootCmd.AddCommand(probeCmd)
}
