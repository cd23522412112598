package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mpm-project/mpm/internal/config"
	"github.com/mpm-project/mpm/internal/daemon"
	"github.com/mpm-project/mpm/internal/logbuf"
	"github.com/mpm-project/mpm/internal/svcctl"
	"github.com/mpm-project/mpm/internal/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "mpmd",
		Short:         "MQTT Power Manager service - executes power actions on broker messages",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runDaemon,
	}
	rootCmd.Version = version.String()
	rootCmd.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")

	runCmd := &cobra.Command{
		Use:           "run",
		Short:         "Run the service in the foreground",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runDaemon,
	}

	installCmd := &cobra.Command{
		Use:           "install",
		Short:         "Register the service with the system service manager",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("failed to locate own binary: %w", err)
			}
			exe, err = filepath.Abs(exe)
			if err != nil {
				return err
			}
			if err := svcctl.Install(svcctl.Config{ExePath: exe}); err != nil {
				return err
			}
			fmt.Println("service installed and started")
			return nil
		},
	}

	uninstallCmd := &cobra.Command{
		Use:           "uninstall",
		Short:         "Remove the service registration",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := svcctl.Uninstall(); err != nil {
				return err
			}
			fmt.Println("service uninstalled")
			return nil
		},
	}

	startCmd := &cobra.Command{
		Use:           "start",
		Short:         "Start the registered service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return svcctl.Start()
		},
	}

	stopCmd := &cobra.Command{
		Use:           "stop",
		Short:         "Stop the registered service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return svcctl.Stop()
		},
	}

	restartCmd := &cobra.Command{
		Use:           "restart",
		Short:         "Restart the registered service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return svcctl.Restart()
		},
	}

	statusCmd := &cobra.Command{
		Use:           "status",
		Short:         "Show whether the service is registered as running",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if svcctl.IsActive() {
				fmt.Println("active")
				return nil
			}
			if daemon.IsRunning() {
				fmt.Println("running (foreground)")
				return nil
			}
			fmt.Println("inactive")
			return nil
		},
	}

	rootCmd.AddCommand(runCmd, installCmd, uninstallCmd, startCmd, stopCmd, restartCmd, statusCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	paths, err := config.Shared()
	if err != nil {
		return fmt.Errorf("no usable settings directory: %w", err)
	}

	logs := logbuf.New(logbuf.DefaultMaxLines)
	if err := logs.OpenFile(filepath.Join(paths.Dir, "mpmd.log")); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
	}

	d, err := daemon.New(daemon.Options{Paths: &paths, Logs: logs})
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		return err
	}
	log.Printf("[Daemon] started (PID: %d), IPC endpoint %s", os.Getpid(), paths.Endpoint)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("[Daemon] received signal %s, shutting down...", sig)
		d.RequestShutdown()
	}()

	d.Wait()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return d.Shutdown(shutdownCtx)
}
