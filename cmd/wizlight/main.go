// Wizlight controls WiZ smart bulbs on the local network.
//
// It discovers bulbs by broadcast, reads and changes their state over the
// UDP/JSON protocol on port 38899, and can follow state changes pushed by
// the bulbs, optionally exporting them as Prometheus metrics.
//
// Usage:
//
//	wizlight [command] [flags]
//
// Bulbs can be addressed by IP, by MAC, or by a nickname stored in the
// configuration file. See 'wizlight --help' for available commands.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/wizlight/internal/config"
	"github.com/muurk/wizlight/internal/logging"
	"github.com/muurk/wizlight/internal/ui"
	"github.com/muurk/wizlight/internal/version"
	"github.com/muurk/wizlight/internal/wiz"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		logging.Error("Command failed", zap.Error(err))
	}
	logging.Sync()
	if errors.Is(err, errReported) {
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Global flags
var (
	configPath   string
	logLevel     string
	outputFormat string
)

// registry is loaded before every command runs
var registry *config.Registry

var rootCmd = &cobra.Command{
	Use:   "wizlight",
	Short: "WiZ Smart Bulb Control Utility",
	Long: `A command-line utility for WiZ smart bulbs on the local network.

Discovers bulbs by UDP broadcast, queries and changes their state, and
follows state changes the bulbs push on their own. No cloud account is
needed; local communication must be enabled in the WiZ app.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logging.Initialize(logLevel); err != nil {
			return err
		}
		format, err := resolveFormat(outputFormat, ui.IsTerminal())
		if err != nil {
			return err
		}
		outputFormat = format

		if configPath != "" {
			registry, err = config.Load(configPath)
		} else {
			registry, err = config.LoadRegistry()
		}
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Configuration file (default $XDG_CONFIG_HOME/wizlight/config.yaml, or $"+config.PathEnvVar+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); silent when unset unless $"+logging.LogLevelEnvVar+" is set")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "", "Output format (detailed, json); detailed on a terminal, json otherwise")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("wizlight %s\n", version.Full())
	},
}

// resolveFormat validates the --format value. Unset means detailed when
// stdout is a terminal and json when it is piped.
func resolveFormat(flag string, tty bool) (string, error) {
	switch flag {
	case "detailed", "json":
		return flag, nil
	case "":
		if tty {
			return "detailed", nil
		}
		return "json", nil
	default:
		return "", fmt.Errorf("invalid --format %q (use detailed or json)", flag)
	}
}

// saveRegistry writes the registry back to where it was loaded from
func saveRegistry() error {
	var err error
	if configPath != "" {
		err = registry.SaveTo(configPath)
	} else {
		err = registry.Save()
	}
	if err == nil {
		logging.Info("Saved configuration", zap.Int("bulbs", len(registry.Bulbs)))
	}
	return err
}

// newClient creates a command channel client from the loaded configuration
func newClient(opts ...wiz.Option) (*wiz.Client, error) {
	client, err := wiz.NewClient(registry.WizConfig(), opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid client configuration: %w", err)
	}
	return client, nil
}
