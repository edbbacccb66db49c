package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/dorkscan/internal/config"
	"github.com/nao1215/dorkscan/internal/tor"
	"github.com/spf13/cobra"
)

// NewTorCmd creates the tor command.
func NewTorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tor",
		Short: "Run a Tor SOCKS proxy for later scans",
		Long: `Tor starts an embedded Tor daemon and keeps it running until interrupted.
Point scans at it with --proxy, so that several scans share one circuit
bootstrap instead of starting their own daemon.

Examples:
  # Start Tor on a random local port
  dorkscan tor

  # Start Tor on a fixed address
  dorkscan tor --listen 127.0.0.1:9150

  # In another terminal
  dorkscan scan -t example.com --proxy socks5h://127.0.0.1:9150`,
		Args: cobra.NoArgs,
		RunE: runTorCmd,
	}

	cmd.Flags().String("listen", "",
		"SOCKS listen address (default: a free local port)")
	cmd.Flags().Duration("tor-timeout", config.DefaultTorStartupTimeout,
		"Timeout for Tor startup")

	return cmd
}

func runTorCmd(cmd *cobra.Command, _ []string) error {
	listen, err := cmd.Flags().GetString("listen")
	if err != nil {
		return err
	}
	timeout, err := cmd.Flags().GetDuration("tor-timeout")
	if err != nil {
		return err
	}

	logger := setupLogger(cmd)
	con := newConsole(cmd.OutOrStdout(), cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []tor.EmbeddedTorOption{tor.WithStartupTimeout(timeout)}
	if listen != "" {
		opts = append(opts, tor.WithListenAddr(listen))
	}
	et := tor.NewEmbeddedTor(opts...)

	con.Infof("starting embedded Tor daemon (this may take 1-3 minutes)...")
	if err := et.Start(ctx); err != nil {
		return fmt.Errorf("failed to start embedded Tor: %w", err)
	}
	defer func() {
		if err := et.Stop(); err != nil {
			logger.Error("failed to stop embedded Tor", "error", err)
		}
	}()

	client, err := et.Client(tor.DefaultCheckTimeout)
	if err != nil {
		return err
	}
	if err := client.Check(ctx); err != nil {
		return fmt.Errorf("embedded Tor proxy check failed: %w", err)
	}

	con.Successf("Tor SOCKS proxy ready at %s", et.SocksAddr())
	if addr := et.ControlAddr(); addr != "" {
		con.Infof("control port: %s", addr)
	}
	con.Printf("\nRun scans through it with:\n  dorkscan scan --proxy %s\n\nPress Ctrl+C to stop.\n", client.ProxyURL())

	<-ctx.Done()
	con.Infof("stopping Tor")
	return nil
}
