package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/grovetools/causes/cli"
	"github.com/grovetools/causes/config"
	"github.com/grovetools/causes/internal/daemon/collector"
	"github.com/grovetools/causes/internal/daemon/engine"
	"github.com/grovetools/causes/internal/daemon/pidfile"
	"github.com/grovetools/causes/internal/daemon/server"
	"github.com/grovetools/causes/internal/daemon/store"
	"github.com/grovetools/causes/pkg/logging/logutil"
	"github.com/grovetools/causes/pkg/paths"
	"github.com/spf13/cobra"
)

const (
	daemonComponent = "causesd"
	shutdownTimeout = 5 * time.Second
)

// NewServeCmd returns the daemon command with its stop and status
// subcommands.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the causes daemon in the foreground",
		Long: `Serve collections over HTTP, Server-Sent Events and WebSocket.

Documents are persisted in SQLite (daemon.db_path, or :memory:). When
daemon.seed_dir is set, every collection file in it is mirrored into the
store and re-imported on change.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().String("addr", "", "Listen address: unix://<path> or host:port")
	cmd.Flags().String("db", "", "SQLite database path, or :memory:")
	cmd.Flags().String("token", "", "Bearer token required by the API")
	cmd.Flags().String("seed", "", "Directory of collection files to mirror")

	cmd.AddCommand(newServeStopCmd())
	cmd.AddCommand(newServeStatusCmd())

	return cmd
}

// applyServeFlags overrides daemon settings with the flags that were set.
func applyServeFlags(cmd *cobra.Command, d *config.DaemonConfig) {
	set := func(flag string, dst *string) {
		if cmd.Flags().Changed(flag) {
			*dst, _ = cmd.Flags().GetString(flag)
		}
	}
	set("addr", &d.Addr)
	set("db", &d.DBPath)
	set("token", &d.Token)
	set("seed", &d.SeedDir)
}

func openStore(path string) (*store.Store, error) {
	if path == "" || path == config.MemoryDB {
		return store.New(), nil
	}
	return store.Open(path)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := cli.GetLogger(cmd, daemonComponent)

	cfg, err := cli.LoadConfig(cmd)
	if err != nil {
		return err
	}
	applyServeFlags(cmd, &cfg.Daemon)
	if err := cfg.Validate(); err != nil {
		return err
	}

	// 1. Acquire Lock
	pidPath := paths.PidFilePath()
	if err := pidfile.Acquire(pidPath); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	defer func() {
		if err := pidfile.Release(pidPath); err != nil {
			logger.Errorf("Failed to release pidfile: %v", err)
		}
	}()

	// 2. Setup Store and Engine
	st, err := openStore(cfg.Daemon.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	eng := engine.New(st, logger)
	if cfg.Daemon.SeedDir != "" {
		eng.Register(collector.NewSeedCollector(cfg.Daemon.SeedDir, logger.WithField("collector", "seed")))
	}

	// 3. Setup Server
	srv := server.New(st, logger)
	srv.SetToken(cfg.Daemon.Token)
	srv.SetRunningConfig(&server.RunningConfig{
		Addr:         cfg.Daemon.Addr,
		DBPath:       st.Path(),
		SeedDir:      cfg.Daemon.SeedDir,
		AuthRequired: cfg.Daemon.Token != "",
		StartedAt:    time.Now(),
	})

	// 4. Handle Signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	go func() {
		select {
		case <-stop:
			logger.Info("Received stop signal")
		case <-ctx.Done():
			return
		}
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("Server shutdown error: %v", err)
		}
	}()

	// 5. Start Engine in background
	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		eng.Start(ctx)
	}()

	// 6. Start Server (Blocking)
	logger.WithField("pid", os.Getpid()).WithField("addr", cfg.Daemon.Addr).Info("Starting daemon")
	err = srv.ListenAndServe(cfg.Daemon.Addr)
	cancel()
	<-engineDone
	stats := eng.Stats()
	logger.WithField("applied", stats.Applied).WithField("rejected", stats.Rejected).Info("Engine stopped")
	if err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func newServeStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pidPath := paths.PidFilePath()
			out := cmd.OutOrStdout()

			pid, err := pidfile.Terminate(pidPath)
			if err != nil {
				return err
			}
			if pid == 0 {
				fmt.Fprintln(out, "Daemon is not running")
				return nil
			}

			fmt.Fprintf(out, "Sent SIGTERM to process %d\n", pid)
			return nil
		},
	}
}

// daemonStatus is the --json form of 'causes serve status'.
type daemonStatus struct {
	Running bool   `json:"running"`
	PID     int    `json:"pid,omitempty"`
	Addr    string `json:"addr"`
	PidFile string `json:"pid_file"`
	LogFile string `json:"log_file,omitempty"`
}

func newServeStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check daemon status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}

			status := daemonStatus{Addr: cfg.Daemon.Addr, PidFile: paths.PidFilePath()}
			running, pid, err := pidfile.IsRunning(status.PidFile)
			if err != nil {
				return fmt.Errorf("error: %w", err)
			}
			status.Running = running
			if running {
				status.PID = pid
			}

			if logFile, _, err := logutil.FindLogFile(cfg, daemonComponent); err == nil {
				status.LogFile = logFile
			}

			out := cmd.OutOrStdout()
			if cli.GetOptions(cmd).JSONOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(status)
			}
			if running {
				fmt.Fprintf(out, "Running (PID: %d)\nAddress: %s\n", pid, status.Addr)
				if status.LogFile != "" {
					fmt.Fprintf(out, "Log: %s\n", status.LogFile)
				}
			} else {
				fmt.Fprintln(out, "Stopped")
				os.Exit(1) // non-zero for scripts
			}
			return nil
		},
	}
}
