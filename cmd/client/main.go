package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/omochice/toy-chat-client/internal/chat"
	"github.com/omochice/toy-chat-client/internal/client"
	"github.com/omochice/toy-chat-client/internal/config"
	"github.com/omochice/toy-chat-client/internal/metrics"
	"github.com/omochice/toy-chat-client/internal/transport"
	"github.com/omochice/toy-chat-client/internal/transport/gobwas"
	"github.com/omochice/toy-chat-client/internal/transport/gorilla"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

func main() {
	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	if err := newRootCmd(&cfg).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd(cfg *config.Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat-client",
		Short: "Connect to a websocket chat server",
		Long: `chat-client connects to a chat server and prints every message it receives.

The first line you type is your name. Lines starting with a slash are commands:
  /history  print the received messages, most recent first
  /quit     disconnect and exit`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger, err := config.NewLogger(cmd.ErrOrStderr(), cfg.LogLevel)
			if err != nil {
				return err
			}
			return run(cmd.Context(), *cfg, cmd.InOrStdin(), cmd.OutOrStdout(), logger)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.URL, "url", cfg.URL, "server URL (ws:// or wss://)")
	flags.StringVar(&cfg.Subprotocol, "subprotocol", cfg.Subprotocol, "websocket sub-protocol to request")
	flags.DurationVar(&cfg.ConnectTimeout, "timeout", cfg.ConnectTimeout, "connection attempt timeout")
	flags.StringVar(&cfg.Transport, "transport", cfg.Transport, "websocket implementation: gorilla or gobwas")
	flags.BoolVar(&cfg.Reconnect, "reconnect", cfg.Reconnect, "reconnect after unexpected disconnects")
	flags.IntVar(&cfg.ReconnectAttempts, "reconnect-attempts", cfg.ReconnectAttempts, "attempts before giving up (0 = unlimited)")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	flags.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "serve Prometheus metrics on this address")

	return cmd
}

func newFactory(cfg config.Client) (transport.Factory, error) {
	opts := transport.Options{URL: cfg.URL}
	if cfg.Subprotocol != "" {
		opts.Subprotocols = []string{cfg.Subprotocol}
	}

	switch cfg.Transport {
	case config.TransportGorilla:
		return gorilla.NewFactory(opts), nil
	case config.TransportGobwas:
		return gobwas.NewFactory(opts), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	return srv
}

func run(ctx context.Context, cfg config.Client, in io.Reader, out io.Writer, logger *slog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}

	factory, err := newFactory(cfg)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	collector := metrics.New(reg)
	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, reg, logger)
		defer srv.Close()
	}

	c := client.New(factory,
		client.WithLogger(logger.With("url", cfg.URL)),
		client.WithConnectTimeout(cfg.ConnectTimeout),
		client.WithMetrics(collector),
	)
	defer c.Close()

	if cfg.Reconnect {
		r := client.NewReconnector(c.Connection(), client.ReconnectPolicy{
			MaxAttempts: cfg.ReconnectAttempts,
			MinDelay:    cfg.ReconnectMinDelay,
			MaxDelay:    cfg.ReconnectMaxDelay,
		})
		defer r.Stop()
	}

	var mu sync.Mutex
	printf := func(format string, args ...any) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(out, format, args...)
	}

	transcript := chat.NewTranscript(chat.DefaultTranscriptSize)
	done := make(chan struct{})
	var wg sync.WaitGroup
	defer wg.Wait()
	defer close(done)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case line := <-c.Lines():
				transcript.Append(line)
				printf("%s\n", line)
			case ev := <-c.States():
				printState(printf, cfg.URL, ev)
			case <-done:
				return
			}
		}
	}()

	if err := c.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	printf("Type your name, then your messages (/history, /quit):\n")
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		text := scanner.Text()
		switch strings.TrimSpace(text) {
		case "/quit":
			return nil
		case "/history":
			printf("%s", transcript.String())
			continue
		}
		c.Submit(ctx, text)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	return nil
}

func printState(printf func(string, ...any), url string, ev client.StateEvent) {
	switch ev.To {
	case client.StateConnecting:
		printf("*** connecting to %s ***\n", url)
	case client.StateConnected:
		printf("*** connected ***\n")
	case client.StateDisconnected:
		if errors.Is(ev.Err, client.ErrClosedByClient) {
			return
		}
		printf("*** disconnected: %v ***\n", ev.Err)
	case client.StateFailed:
		printf("*** giving up: %v ***\n", ev.Err)
	}
}
