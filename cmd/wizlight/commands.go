package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/muurk/wizlight/internal/bulb"
	"github.com/muurk/wizlight/internal/discovery"
	"github.com/muurk/wizlight/internal/logging"
	"github.com/muurk/wizlight/internal/state"
	"github.com/muurk/wizlight/internal/ui"
	"github.com/muurk/wizlight/internal/wiz"
)

// errReported is returned after a failure box was already printed
var errReported = errors.New("command failed")

func init() {
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(onCmd)
	rootCmd.AddCommand(offCmd)
	rootCmd.AddCommand(toggleCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(nameCmd)
	rootCmd.AddCommand(rebootCmd)
	rootCmd.AddCommand(resetCmd)
}

// Discover command flags
var (
	discoverWait      time.Duration
	discoverBroadcast string
	discoverSave      bool
)

// discoverCmd finds bulbs by broadcast
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover bulbs on the local network",
	Long: `Broadcast a registration request and list every bulb that answers.

The request is repeated every second until --wait elapses. Bulbs are listed
once each, keyed by address and MAC. Found bulbs are recorded in the
configuration file so they can be addressed by MAC or nickname later.`,
	Example: `  # Listen for 5 seconds (default)
  wizlight discover

  # Use the subnet broadcast address on hosts with several interfaces
  wizlight discover --broadcast 192.168.1.255

  # Machine-readable output without touching the configuration file
  wizlight discover --format json --save=false`,
	Args: cobra.NoArgs,
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().DurationVar(&discoverWait, "wait", 5*time.Second, "How long to listen for answers")
	discoverCmd.Flags().StringVar(&discoverBroadcast, "broadcast", "", "Broadcast address (default from config, else 255.255.255.255)")
	discoverCmd.Flags().BoolVar(&discoverSave, "save", true, "Record found bulbs in the configuration file")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	cfg := registry.DiscoveryConfig()
	if discoverBroadcast != "" {
		cfg.BroadcastAddress = discoverBroadcast
	}

	if outputFormat == "detailed" {
		fmt.Printf("Discovering bulbs via %s:%d (wait: %s)...\n\n", cfg.BroadcastAddress, cfg.Port, discoverWait)
	}

	devices, err := discovery.Discover(cmd.Context(), cfg, discoverWait)
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}

	if discoverSave && len(devices) > 0 {
		added := registry.RecordDiscovery(devices)
		if err := saveRegistry(); err != nil {
			return fmt.Errorf("failed to save discovered bulbs: %w", err)
		}
		logging.Debug("Recorded discovered bulbs", zap.Int("found", len(devices)), zap.Int("new", added))
	}

	if outputFormat == "json" {
		return printJSON(devices)
	}
	fmt.Print(ui.RenderDevices(devices, nicknames()))
	return nil
}

// stateCmd queries one or more bulbs concurrently
var stateCmd = &cobra.Command{
	Use:   "state <bulb>...",
	Short: "Show the current state of bulbs",
	Long: `Query getPilot on every given bulb concurrently and show the result.

A bulb can be given as an IP address (optionally with port), a MAC address
or a nickname from the configuration file.`,
	Example: `  wizlight state 192.168.1.42
  wizlight state desk porch --format json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runState,
}

func runState(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	hosts := resolveAll(args)
	results := make([]*state.PilotState, len(hosts))

	g, ctx := errgroup.WithContext(cmd.Context())
	for i, host := range hosts {
		i, host := i, host
		g.Go(func() error {
			p, err := bulb.New(host, client).UpdateState(ctx)
			if err != nil {
				return &hostError{host: host, err: err}
			}
			results[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report("State query failed", err)
	}

	if outputFormat == "json" {
		out := make(map[string]map[string]interface{}, len(hosts))
		for i, host := range hosts {
			out[host] = results[i].Raw()
		}
		return printJSON(out)
	}
	for i, host := range hosts {
		fmt.Println(ui.RenderPilot(host, results[i]))
	}
	return nil
}

// On command flags
var (
	onBrightness int
	onTemp       int
	onScene      int
	onSpeed      int
	onRGB        string
)

var onCmd = &cobra.Command{
	Use:   "on <bulb>",
	Short: "Turn a bulb on",
	Long: `Turn a bulb on, optionally setting brightness, white temperature,
colour or scene in the same request.

Brightness is a percentage; bulbs clamp it to at least 10. Temperature is
in kelvin and clamped to 1000-10000. Scenes are given by numeric id.`,
	Example: `  wizlight on desk
  wizlight on desk --brightness 40 --temp 2700
  wizlight on 192.168.1.42 --rgb 255,80,0
  wizlight on porch --scene 4 --speed 150`,
	Args: cobra.ExactArgs(1),
	RunE: runOn,
}

func init() {
	onCmd.Flags().IntVar(&onBrightness, "brightness", -1, "Brightness in percent (0-100)")
	onCmd.Flags().IntVar(&onTemp, "temp", 0, "White colour temperature in kelvin")
	onCmd.Flags().IntVar(&onScene, "scene", 0, "Scene id")
	onCmd.Flags().IntVar(&onSpeed, "speed", 0, "Scene speed (10-200)")
	onCmd.Flags().StringVar(&onRGB, "rgb", "", "Colour as r,g,b (0-255 each)")
}

func runOn(cmd *cobra.Command, args []string) error {
	params, err := pilotParams(onBrightness, onTemp, onScene, onSpeed, onRGB)
	if err != nil {
		return err
	}
	return withBulb(cmd, args[0], "Turn on failed", func(b *bulb.Bulb) (string, error) {
		return "Bulb turned on", b.TurnOn(cmd.Context(), params)
	})
}

var offCmd = &cobra.Command{
	Use:   "off <bulb>",
	Short: "Turn a bulb off",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBulb(cmd, args[0], "Turn off failed", func(b *bulb.Bulb) (string, error) {
			return "Bulb turned off", b.TurnOff(cmd.Context())
		})
	},
}

var toggleCmd = &cobra.Command{
	Use:   "toggle <bulb>",
	Short: "Toggle a bulb between on and off",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBulb(cmd, args[0], "Toggle failed", func(b *bulb.Bulb) (string, error) {
			return "Bulb toggled", b.Toggle(cmd.Context())
		})
	},
}

// configCmd shows the bulb's identifying configuration
var configCmd = &cobra.Command{
	Use:   "config <bulb>",
	Short: "Show a bulb's system, model and user configuration",
	Long: `Query getSystemConfig, getModelConfig and getUserConfig.

getModelConfig is missing on older firmware; it is then left out.
With --format json the three results are printed verbatim.`,
	Args: cobra.ExactArgs(1),
	RunE: runConfig,
}

func runConfig(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	host := registry.Resolve(args[0])
	b := bulb.New(host, client)
	ctx := cmd.Context()

	sys, err := b.SystemConfig(ctx)
	if err != nil {
		return report("Configuration query failed", &hostError{host: host, err: err})
	}
	model, err := b.ModelConfig(ctx)
	if err != nil {
		return report("Configuration query failed", &hostError{host: host, err: err})
	}
	user, err := b.UserConfig(ctx)
	if err != nil && !errors.Is(err, wiz.ErrMethodNotFound) {
		return report("Configuration query failed", &hostError{host: host, err: err})
	}

	if sys.MAC != "" {
		registry.EnsureBulb(sys.MAC).ModuleName = sys.ModuleName
		if err := saveRegistry(); err != nil {
			logging.Warn("Failed to save configuration", zap.Error(err))
		}
	}

	if outputFormat == "json" {
		// Every successful result keyed by method
		return printJSON(b.Diagnostics().History[bulb.HistoryReceive])
	}

	fmt.Println(ui.RenderSystemConfig(host, sys))
	if model == nil {
		fmt.Println("  getModelConfig is not supported by this firmware")
	}
	if user != nil {
		if p, err := state.ParsePilot(user); err == nil {
			if kelvin, ok := p.ExtendedWhiteRange(); ok {
				fmt.Printf("  Extended white range: %v\n", kelvin)
			}
		}
	}
	return nil
}

// sendCmd sends a raw request
var sendCmd = &cobra.Command{
	Use:   "send <bulb> <method> [params-json]",
	Short: "Send a raw request and print the result",
	Long: `Send any method with optional JSON params and print the result object.

Useful for methods this tool has no command for. Retries and timeouts
follow the same rules as every other command: get* methods use the
query timeout, everything else the shorter command timeout.`,
	Example: `  wizlight send desk getPilot
  wizlight send desk setPilot '{"state":true,"dimming":30}'
  wizlight send desk getPower --log-level debug`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runSend,
}

func runSend(cmd *cobra.Command, args []string) error {
	var params map[string]interface{}
	if len(args) == 3 {
		if err := json.Unmarshal([]byte(args[2]), &params); err != nil {
			return fmt.Errorf("params must be a JSON object: %w", err)
		}
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	host := registry.Resolve(args[0])

	result, err := client.Send(cmd.Context(), host, wiz.Method(args[1]), params)
	if err != nil {
		return report("Request failed", &hostError{host: host, err: err})
	}
	return printJSON(result)
}

// nameCmd assigns a nickname
var nameCmd = &cobra.Command{
	Use:   "name <mac> <nickname>",
	Short: "Give a bulb a nickname",
	Long: `Store a nickname for the bulb with the given MAC in the configuration
file. Commands then accept the nickname instead of an address. The bulb's
address is learnt by 'wizlight discover'.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		mac := strings.ToLower(args[0])
		registry.SetBulbNickname(mac, args[1])
		if err := saveRegistry(); err != nil {
			return fmt.Errorf("failed to save configuration: %w", err)
		}
		fmt.Printf("%s is now known as %q\n", mac, args[1])
		return nil
	},
}

var rebootCmd = &cobra.Command{
	Use:   "reboot <bulb>",
	Short: "Reboot a bulb",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBulb(cmd, args[0], "Reboot failed", func(b *bulb.Bulb) (string, error) {
			return "Bulb rebooting", b.Reboot(cmd.Context())
		})
	},
}

var resetYes bool

var resetCmd = &cobra.Command{
	Use:   "reset <bulb>",
	Short: "Factory reset a bulb",
	Long: `Factory reset a bulb. The bulb forgets its WiFi credentials and must
be set up again with the WiZ app. Asks for confirmation unless --yes is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		host := registry.Resolve(args[0])
		if !resetYes && !ui.FactoryResetConfirmation(os.Stdin, os.Stdout, host) {
			return nil
		}
		return withBulb(cmd, args[0], "Reset failed", func(b *bulb.Bulb) (string, error) {
			return "Bulb reset to factory defaults", b.Reset(cmd.Context())
		})
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetYes, "yes", false, "Skip the confirmation prompt")
}

// withBulb runs one state-changing operation and reports the outcome
func withBulb(cmd *cobra.Command, target, failTitle string, op func(*bulb.Bulb) (string, error)) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	host := registry.Resolve(target)

	title, err := op(bulb.New(host, client))
	if err != nil {
		return report(failTitle, &hostError{host: host, err: err})
	}

	if outputFormat == "json" {
		return printJSON(map[string]interface{}{"host": host, "success": true})
	}
	fmt.Println(ui.NewSuccessResult(title).AddDetail("Bulb", host).Render())
	return nil
}

// pilotParams builds setPilot params from the on command flags.
// Negative brightness and zero values mean "not given".
func pilotParams(brightness, temp, scene, speed int, rgb string) (map[string]interface{}, error) {
	params := map[string]interface{}{}

	if brightness >= 0 {
		if brightness > 100 {
			return nil, fmt.Errorf("brightness must be between 0 and 100 (got %d)", brightness)
		}
		params["dimming"] = max(10, brightness)
	}
	if temp != 0 {
		params["temp"] = min(10000, max(1000, temp))
	}
	if rgb != "" {
		channels, err := parseRGB(rgb)
		if err != nil {
			return nil, err
		}
		params["r"], params["g"], params["b"] = channels[0], channels[1], channels[2]
	}
	if scene != 0 {
		if scene < 0 {
			return nil, fmt.Errorf("scene id must be positive (got %d)", scene)
		}
		params["sceneId"] = scene
	}
	if speed != 0 {
		if speed < 10 || speed > 200 {
			return nil, fmt.Errorf("speed must be between 10 and 200 (got %d)", speed)
		}
		params["speed"] = speed
	}

	modes := 0
	for _, key := range []string{"temp", "r", "sceneId"} {
		if _, ok := params[key]; ok {
			modes++
		}
	}
	if modes > 1 {
		return nil, fmt.Errorf("--temp, --rgb and --scene are mutually exclusive")
	}
	return params, nil
}

// parseRGB parses "r,g,b"
func parseRGB(s string) ([3]int, error) {
	var out [3]int
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return out, fmt.Errorf("colour must be r,g,b (got %q)", s)
	}
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return out, fmt.Errorf("invalid colour channel %q: %w", p, err)
		}
		if v < 0 || v > 255 {
			return out, fmt.Errorf("colour channel must be between 0 and 255 (got %d)", v)
		}
		out[i] = v
	}
	return out, nil
}

// hostError names the bulb a failure belongs to
type hostError struct {
	host string
	err  error
}

func (e *hostError) Error() string { return e.host + ": " + e.err.Error() }
func (e *hostError) Unwrap() error { return e.err }

// report prints a failure box in detailed mode and returns errReported so
// main does not print the error twice. JSON mode returns the error as is.
func report(title string, err error) error {
	if outputFormat == "json" {
		return err
	}
	r := ui.NewErrorResult(title, err)
	var he *hostError
	if errors.As(err, &he) {
		r.Details = append([]ui.Detail{{Key: "Bulb", Value: he.host}}, r.Details...)
	}
	fmt.Fprintln(os.Stderr, r.Render())
	return errReported
}

// resolveAll maps nicknames and MACs to addresses
func resolveAll(targets []string) []string {
	hosts := make([]string, len(targets))
	for i, t := range targets {
		hosts[i] = registry.Resolve(t)
	}
	return hosts
}

// nicknames returns MAC to nickname for every named bulb
func nicknames() map[string]string {
	out := map[string]string{}
	for _, mac := range registry.MACs() {
		if n := registry.GetBulb(mac).Nickname; n != "" {
			out[mac] = n
		}
	}
	return out
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
