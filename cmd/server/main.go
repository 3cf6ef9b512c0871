package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/omochice/toy-chat-client/internal/config"
	"github.com/omochice/toy-chat-client/internal/server"
	"github.com/spf13/cobra"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	cmd := &cobra.Command{
		Use:           "chat-server",
		Short:         "Run a development chat server",
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

			srv := server.New(cfg.Addr, cfg.HistorySize, logger)

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigChan)

			errChan := make(chan error, 1)
			go func() {
				errChan <- srv.Start()
			}()

			select {
			case err := <-errChan:
				if !errors.Is(err, server.ErrStopped) {
					return err
				}
			case sig := <-sigChan:
				logger.Info("shutting down", "signal", sig.String())
				srv.Stop()
			}

			logger.Info("server stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&cfg.Addr, "addr", cfg.Addr, "address to listen on")
	cmd.Flags().IntVar(&cfg.HistorySize, "history-size", cfg.HistorySize, "number of messages sent to new clients")
	cmd.Flags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
