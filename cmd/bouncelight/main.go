package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"bouncelight/internal/journal"
)

const version = "1.0.0"

var (
	flagConfig  string
	flagLogFile string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "bouncelight",
		Short: "Button-driven kinematic light for an APA102 strip",
		Long: `bouncelight drives a single lit pixel along an APA102 LED strip.

Holding the button accelerates it; releasing it lets friction bring it to
rest. Reach terminal velocity and the whole strip flashes the impact color.`,
		SilenceUsage: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagConfig, "config", "c", "", "Path to YAML config file")
	pf.String("log-level", "", "Log level: error, warn, info, debug")
	pf.String("log-format", "", "Log format: text, json, logfmt")
	pf.String("ipc-socket", "", "Unix domain socket path for IPC")

	rootCmd.AddCommand(
		newRunCmd(),
		newSimCmd(),
		newWatchCmd(),
		newIPCCmd("press", "Hold the virtual button down"),
		newIPCCmd("release", "Let go of the virtual button"),
		newIPCCmd("toggle", "Flip the virtual button"),
		newIPCCmd("status", "Print the daemon's current state"),
		newHistoryCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the light daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Logging, os.Stderr)
			if err != nil {
				return err
			}
			logger.Debug("starting bouncelight", "version", version)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := runDaemon(ctx, cfg, logger); err != nil {
				logger.Error("daemon failed", "error", err)
				return err
			}
			logger.Info("shutdown complete")
			return nil
		},
	}

	f := cmd.Flags()
	f.String("button", "", "Button source: evdev, gpio, ipc")
	f.String("button-device", "", "Input event device for the evdev source")
	f.String("gpio", "", "Sysfs GPIO value file for the gpio source")
	f.String("display", "", "Display driver: spi, none")
	f.String("spi-device", "", "spidev device for the spi driver")
	f.Int("length", 0, "Number of pixels on the strip")
	f.Bool("state-ws", false, "Serve the state websocket")
	f.String("state-ws-listen", "", "Listen address for the state websocket")
	f.Bool("journal", false, "Record mode transitions")
	f.String("journal-path", "", "Journal database path")
	return cmd
}

func newSimCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sim",
		Short: "Simulate the light in the terminal",
		Long:  "Simulate the light in the terminal. Space presses and releases the button.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}

			// The TUI owns the terminal; logs go to a file or nowhere.
			var out io.Writer = io.Discard
			if flagLogFile != "" {
				f, err := os.OpenFile(ExpandPath(flagLogFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
				if err != nil {
					return fmt.Errorf("open log file: %w", err)
				}
				defer f.Close()
				out = f
			}
			logger, err := newLogger(cfg.Logging, out)
			if err != nil {
				return err
			}

			return runSimulator(cmd.Context(), cfg, logger)
		},
	}

	f := cmd.Flags()
	f.Int("length", 0, "Number of pixels on the strip")
	f.Bool("journal", false, "Record mode transitions")
	f.String("journal-path", "", "Journal database path")
	f.StringVar(&flagLogFile, "log-file", "", "Write logs to this file")
	return cmd
}

func newWatchCmd() *cobra.Command {
	var frames bool

	cmd := &cobra.Command{
		Use:   "watch [url]",
		Short: "Follow a daemon's state websocket",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Logging, os.Stderr)
			if err != nil {
				return err
			}

			url := stateWSURL(cfg.StateWS)
			if len(args) == 1 {
				url = args[0]
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, url, frames, cmd.OutOrStdout(), logger)
		},
	}
	cmd.Flags().BoolVar(&frames, "frames", false, "Print every frame message, not just mode changes")
	return cmd
}

// stateWSURL builds a client URL for the configured listener.
func stateWSURL(cfg StateWSConfig) string {
	host := cfg.Listen
	if strings.HasPrefix(host, ":") {
		host = "127.0.0.1" + host
	}
	return "ws://" + host + cfg.Path
}

func newIPCCmd(reqType, short string) *cobra.Command {
	return &cobra.Command{
		Use:   reqType,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			resp, err := SendIPCRequest(ExpandPath(cfg.IPC.SocketPath), reqType)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if reqType == ipcStatus {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			if resp.Pressed != nil {
				fmt.Fprintf(out, "pressed: %v\n", *resp.Pressed)
			}
			return nil
		},
	}
}

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded mode transitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			store, err := journal.Open(ExpandPath(cfg.Journal.Path))
			if err != nil {
				return err
			}
			defer store.Close()
			return writeHistory(cmd.Context(), cmd.OutOrStdout(), store, limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of transitions to show")
	cmd.Flags().String("journal-path", "", "Journal database path")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and exit",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "bouncelight v%s\n", version)
		},
	}
}

// loadConfig layers defaults, the config file and explicit flags, then
// validates the result.
func loadConfig(fs *pflag.FlagSet) (Config, error) {
	cfg := DefaultConfig()
	if flagConfig != "" {
		var err error
		cfg, err = LoadConfigFile(flagConfig)
		if err != nil {
			return Config{}, err
		}
	}
	overridesFromFlags(fs).Apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// overridesFromFlags collects the flags the user actually set.
func overridesFromFlags(fs *pflag.FlagSet) FlagOverrides {
	str := func(name string) *string {
		if f := fs.Lookup(name); f != nil && f.Changed {
			v := f.Value.String()
			return &v
		}
		return nil
	}
	integer := func(name string) *int {
		if f := fs.Lookup(name); f != nil && f.Changed {
			if v, err := fs.GetInt(name); err == nil {
				return &v
			}
		}
		return nil
	}
	boolean := func(name string) *bool {
		if f := fs.Lookup(name); f != nil && f.Changed {
			if v, err := fs.GetBool(name); err == nil {
				return &v
			}
		}
		return nil
	}

	return FlagOverrides{
		ButtonSource:   str("button"),
		ButtonDevice:   str("button-device"),
		ButtonGPIO:     str("gpio"),
		DisplayDriver:  str("display"),
		DisplayDevice:  str("spi-device"),
		StripLength:    integer("length"),
		StateWSEnabled: boolean("state-ws"),
		StateWSListen:  str("state-ws-listen"),
		IPCSocketPath:  str("ipc-socket"),
		JournalEnabled: boolean("journal"),
		JournalPath:    str("journal-path"),
		LogLevel:       str("log-level"),
		LogFormat:      str("log-format"),
	}
}

// newLogger builds the process logger from the validated logging section.
func newLogger(cfg LoggingConfig, w io.Writer) (*slog.Logger, error) {
	level, err := parseLogLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	format, err := parseLogFormat(cfg.Format)
	if err != nil {
		return nil, err
	}
	return setupLogger(w, level, format), nil
}
