package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/agentconsole/agentconsole/internal/agent"
	"github.com/agentconsole/agentconsole/internal/capture"
	"github.com/agentconsole/agentconsole/internal/config"
	"github.com/agentconsole/agentconsole/internal/conversation"
	"github.com/agentconsole/agentconsole/internal/invocation"
	"github.com/agentconsole/agentconsole/internal/logging"
	"github.com/agentconsole/agentconsole/internal/streamjson"
)

// version is the CLI build version.
const version = "0.1.0"

// options holds all root CLI flags.
type options struct {
	// Endpoint overrides the configured agent URL.
	Endpoint string
	// Print runs a single turn and exits.
	Print bool
	// OutputFormat controls print mode output encoding.
	OutputFormat string
	// Fields are extra request fields as key[:type]=value.
	Fields []string
	// Headers are extra request headers as Key=Value.
	Headers []string
	// Settings provides a path or inline JSON/YAML for settings overrides.
	Settings string
	// SettingSources limits settings sources to load.
	SettingSources []string
	// Capture records each turn's raw stream.
	Capture bool
	// Debug enables debug logging.
	Debug bool
	// DebugFile writes logs to a file path.
	DebugFile string
	// Timeout overrides the request timeout.
	Timeout time.Duration
	// Verbose prints tool output in text mode.
	Verbose bool
	// Version prints the CLI version.
	Version bool
}

// main wires Cobra and executes the CLI.
func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCommand builds the command tree.
func newRootCommand() *cobra.Command {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:          "agentconsole [prompt]",
		Short:        "Chat console for streaming agent endpoints",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Version {
				fmt.Fprintln(cmd.OutOrStdout(), version)
				return nil
			}
			return runRoot(cmd, opts, args)
		},
	}
	rootCmd.Args = cobra.ArbitraryArgs

	applyFlags(rootCmd.Flags(), opts)

	rootCmd.AddCommand(doctorCommand(opts))
	rootCmd.AddCommand(replayCommand(opts))
	rootCmd.AddCommand(capturesCommand())
	rootCmd.AddCommand(mockAgentCommand())
	return rootCmd
}

// applyFlags defines the root flags.
func applyFlags(flags *pflag.FlagSet, opts *options) {
	flags.SetNormalizeFunc(normalizeFlagName)

	flags.StringVar(&opts.Endpoint, "endpoint", "", "Agent invocation URL")
	flags.BoolVarP(&opts.Print, "print", "p", false, "Print response and exit")
	flags.StringVar(&opts.OutputFormat, "output-format", "text", "Output format (text|stream-json)")
	flags.StringArrayVar(&opts.Fields, "field", nil, "Extra request field as key[:type]=value (repeatable)")
	flags.StringArrayVar(&opts.Headers, "header", nil, "Extra request header as Key=Value (repeatable)")
	flags.StringVar(&opts.Settings, "settings", "", "Settings file path or inline JSON/YAML")
	flags.StringSliceVar(&opts.SettingSources, "setting-sources", nil, "Setting sources (user,project,local)")
	flags.BoolVar(&opts.Capture, "capture", false, "Record raw streams for replay")
	flags.BoolVar(&opts.Debug, "debug", false, "Enable debug logging")
	flags.StringVar(&opts.DebugFile, "debug-file", "", "Write logs to a file")
	flags.DurationVar(&opts.Timeout, "timeout", 0, "Request timeout (e.g. 90s); 0 keeps the configured value")
	flags.BoolVar(&opts.Verbose, "verbose", false, "Show tool output")
	flags.BoolVarP(&opts.Version, "version", "v", false, "Output the version number")
}

// normalizeFlagName maps underscore aliases to dashed names.
func normalizeFlagName(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	switch name {
	case "output_format", "outputFormat":
		return "output-format"
	case "setting_sources", "settingSources":
		return "setting-sources"
	case "debug_file", "debugFile":
		return "debug-file"
	default:
		return pflag.NormalizedName(name)
	}
}

// runRoot loads configuration and dispatches to print or interactive mode.
func runRoot(cmd *cobra.Command, opts *options, args []string) error {
	cfg, err := resolveConfig(opts, mustCwd())
	if err != nil {
		return err
	}
	closer, err := logging.Setup(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer closer.Close()

	runner, err := buildRunner(cfg)
	if err != nil {
		return err
	}
	logging.Component("cli").WithFields(log.Fields{
		"endpoint": cfg.Endpoint,
		"sources":  strings.Join(cfg.Sources, ","),
	}).Debug("configuration loaded")

	if opts.Print {
		prompt, err := readPrompt(args, cmd.InOrStdin())
		if err != nil {
			return err
		}
		return runPrintMode(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), opts, runner, prompt)
	}
	if term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd())) {
		return runInteractiveTUI(runner, cfg, strings.Join(args, " "))
	}
	return runLineREPL(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr(), runner, opts.Verbose)
}

// resolveConfig merges settings files with flag overrides.
func resolveConfig(opts *options, cwd string) (*config.Config, error) {
	cfg, err := config.Load(cwd, splitList(strings.Join(opts.SettingSources, ",")), opts.Settings)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if opts.Endpoint != "" {
		cfg.Endpoint = opts.Endpoint
	}
	if opts.Timeout > 0 {
		cfg.TimeoutMS = int(opts.Timeout.Milliseconds())
	}
	for _, header := range opts.Headers {
		if err := cfg.SetHeader(header); err != nil {
			return nil, err
		}
	}
	for _, raw := range opts.Fields {
		field, err := config.ParseFieldFlag(raw)
		if err != nil {
			return nil, err
		}
		cfg.SetField(field)
	}
	if opts.Capture {
		cfg.Capture = true
	}
	if opts.Debug {
		cfg.LogLevel = "debug"
	}
	if opts.DebugFile != "" {
		cfg.LogFile = opts.DebugFile
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildRunner wires the HTTP client, conversation store and capture store.
func buildRunner(cfg *config.Config) (*agent.Runner, error) {
	clientOptions := []invocation.Option{invocation.WithLogger(logging.Component("invocation"))}
	for _, key := range sortedKeys(cfg.Headers) {
		clientOptions = append(clientOptions, invocation.WithHeader(key, cfg.Headers[key]))
	}
	runner := &agent.Runner{
		Client:      invocation.NewClient(cfg.Endpoint, cfg.Timeout(), clientOptions...),
		Store:       conversation.NewStore(),
		ExtraFields: cfg.Fields,
		Logger:      logging.Component("agent"),
	}
	if cfg.Capture {
		captures, err := capture.NewStore()
		if err != nil {
			return nil, err
		}
		runner.Captures = captures
	}
	return runner, nil
}

// readPrompt joins positional args, falling back to stdin.
func readPrompt(args []string, stdin io.Reader) (string, error) {
	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt == "" && stdin != nil {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read prompt: %w", err)
		}
		prompt = strings.TrimSpace(string(data))
	}
	if prompt == "" {
		return "", errors.New("prompt is required in print mode")
	}
	return prompt, nil
}

// runPrintMode runs one turn and writes the result in the chosen format.
func runPrintMode(
	ctx context.Context,
	out io.Writer,
	errOut io.Writer,
	opts *options,
	runner *agent.Runner,
	prompt string,
) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := withInterrupt(ctx, nil)
	defer stop()

	switch opts.OutputFormat {
	case "", "text":
		printer := newStreamPrinter(out, errOut, opts.Verbose)
		result, err := runner.RunTurn(ctx, prompt, printer.Callbacks())
		printer.EnsureNewline()
		if err != nil {
			return err
		}
		if result.ToolInputErr != nil {
			fmt.Fprintf(errOut, "warning: %v\n", result.ToolInputErr)
		}
		if result.CaptureID != "" {
			fmt.Fprintf(errOut, "capture: %s\n", result.CaptureID)
		}
		return nil
	case "stream-json":
		emitter := streamjson.NewEmitter(out, "")
		if err := emitter.System(runner.Client.Endpoint()); err != nil {
			return err
		}
		result, turnErr := runner.RunTurn(ctx, prompt, emitter.Callbacks())
		if err := emitter.Result(result, finalText(runner.Store, result), turnErr); err != nil {
			return err
		}
		if turnErr != nil {
			return turnErr
		}
		return emitter.Err()
	default:
		return fmt.Errorf("unsupported output format %q", opts.OutputFormat)
	}
}

// finalText returns the content of the turn's last assistant message.
func finalText(store *conversation.Store, result *agent.TurnResult) string {
	if store == nil || result == nil {
		return ""
	}
	message, ok := store.Message(result.LastMessageID())
	if !ok {
		return ""
	}
	return message.Content
}

// splitList parses comma/space-separated lists.
func splitList(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	parts := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ' '
	})
	var list []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			list = append(list, part)
		}
	}
	return list
}

func sortedKeys(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// mustCwd returns cwd or "." if unavailable.
func mustCwd() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return cwd
}
