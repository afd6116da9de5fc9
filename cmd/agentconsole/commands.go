package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentconsole/agentconsole/internal/agent"
	"github.com/agentconsole/agentconsole/internal/capture"
	"github.com/agentconsole/agentconsole/internal/conversation"
	"github.com/agentconsole/agentconsole/internal/logging"
	"github.com/agentconsole/agentconsole/internal/mockagent"
	"github.com/agentconsole/agentconsole/internal/streamjson"
)

// doctorCommand validates the merged configuration and the capture store.
func doctorCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check agentconsole configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			cfg, err := resolveConfig(opts, mustCwd())
			if err != nil {
				return fmt.Errorf("configuration invalid: %w", err)
			}
			fmt.Fprintf(out, "OK: endpoint %s\n", cfg.Endpoint)
			fmt.Fprintf(out, "OK: timeout %s\n", cfg.Timeout())
			if len(cfg.Sources) == 0 {
				fmt.Fprintln(out, "OK: no settings files, using defaults")
			}
			for _, source := range cfg.Sources {
				fmt.Fprintf(out, "OK: settings %s\n", source)
			}
			if len(cfg.Fields) > 0 {
				keys := make([]string, 0, len(cfg.Fields))
				for key := range cfg.Fields {
					keys = append(keys, key)
				}
				sort.Strings(keys)
				fmt.Fprintf(out, "OK: extra fields %v\n", keys)
			}
			if cfg.Capture {
				store, err := capture.NewStore()
				if err != nil {
					return fmt.Errorf("capture store unavailable: %w", err)
				}
				fmt.Fprintf(out, "OK: captures in %s\n", store.BaseDir)
			}
			return nil
		},
	}
}

// replayCommand feeds a recorded stream through the decoder.
func replayCommand(rootOpts *options) *cobra.Command {
	opts := &options{OutputFormat: "text"}
	cmd := &cobra.Command{
		Use:   "replay <capture-id|file>",
		Short: "Replay a captured agent stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			closer, err := logging.Setup(replayLogLevel(opts.Debug || rootOpts.Debug), "")
			if err != nil {
				return err
			}
			defer closer.Close()

			store, err := capture.NewStore()
			if err != nil {
				return err
			}
			records, err := store.Load(args[0])
			if err != nil {
				return err
			}
			runner := &agent.Runner{Store: conversation.NewStore(), Logger: logging.Component("replay")}
			return runReplay(cmd.Context(), cmd, opts, runner, records)
		},
	}
	cmd.Flags().StringVar(&opts.OutputFormat, "output-format", "text", "Output format (text|stream-json)")
	cmd.Flags().BoolVar(&opts.Verbose, "verbose", false, "Show tool output")
	cmd.Flags().BoolVar(&opts.Debug, "debug", false, "Enable debug logging")
	return cmd
}

// runReplay renders a replayed capture the same way print mode renders a turn.
func runReplay(ctx context.Context, cmd *cobra.Command, opts *options, runner *agent.Runner, records []capture.Record) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()
	switch opts.OutputFormat {
	case "", "text":
		printer := newStreamPrinter(out, cmd.ErrOrStderr(), opts.Verbose)
		_, err := runner.Replay(ctx, capture.Reader(records), printer.Callbacks())
		printer.EnsureNewline()
		return err
	case "stream-json":
		emitter := streamjson.NewEmitter(out, "")
		if err := emitter.System(""); err != nil {
			return err
		}
		result, replayErr := runner.Replay(ctx, capture.Reader(records), emitter.Callbacks())
		if err := emitter.Result(result, finalText(runner.Store, result), replayErr); err != nil {
			return err
		}
		return replayErr
	default:
		return fmt.Errorf("unsupported output format %q", opts.OutputFormat)
	}
}

func replayLogLevel(debug bool) string {
	if debug {
		return "debug"
	}
	return "warn"
}

// capturesCommand lists recorded streams, newest first.
func capturesCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "captures",
		Short: "List captured agent streams",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := capture.NewStore()
			if err != nil {
				return err
			}
			infos, err := store.List(limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(infos) == 0 {
				fmt.Fprintln(out, "No captures yet. Run with --capture to record streams.")
				return nil
			}
			for _, info := range infos {
				fmt.Fprintf(out, "%-40s %10d  %s\n", info.ID, info.Size, info.ModTime.Format(time.RFC3339))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of captures to list")
	return cmd
}

// mockAgentCommand serves a scripted agent endpoint for local testing.
func mockAgentCommand() *cobra.Command {
	var (
		addr        string
		fixturePath string
		chunkSize   int
		delay       time.Duration
	)
	cmd := &cobra.Command{
		Use:   "mock-agent",
		Short: "Serve a scripted streaming agent endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			closer, err := logging.Setup("info", "")
			if err != nil {
				return err
			}
			defer closer.Close()

			serverOptions := mockagent.Options{
				ChunkSize: chunkSize,
				Delay:     delay,
				Logger:    logging.Component("mockagent"),
			}
			if fixturePath != "" {
				fixture, err := mockagent.LoadFixture(fixturePath)
				if err != nil {
					return err
				}
				serverOptions.Fixture = &fixture
			}

			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			ctx, stop := withInterrupt(parent, nil)
			defer stop()
			return serveMockAgent(ctx, addr, mockagent.NewServer(serverOptions))
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "Listen address")
	cmd.Flags().StringVar(&fixturePath, "fixture", "", "File of stream lines to replay instead of the built-in script")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", mockagent.DefaultChunkSize, "Bytes per write")
	cmd.Flags().DurationVar(&delay, "delay", 20*time.Millisecond, "Pause between writes")
	return cmd
}

// serveMockAgent runs handler on addr until ctx is cancelled.
func serveMockAgent(ctx context.Context, addr string, handler http.Handler) error {
	server := &http.Server{Addr: addr, Handler: handler}
	logger := logging.Component("mockagent").WithField("addr", addr)
	errCh := make(chan error, 1)
	go func() {
		logger.Info("mock agent listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return err
		}
		logger.Info("mock agent stopped")
		return nil
	}
}
