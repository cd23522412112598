package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mpm-project/mpm/internal/config"
	"github.com/mpm-project/mpm/internal/ipc"
	"github.com/mpm-project/mpm/internal/ipcauth"
	"github.com/mpm-project/mpm/internal/secret"
	"github.com/mpm-project/mpm/internal/settings"
	"github.com/mpm-project/mpm/internal/version"
)

const requestTimeout = 2 * time.Second

func main() {
	rootCmd := &cobra.Command{
		Use:           "mpm",
		Short:         "MQTT Power Manager - control the power management session",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.Version = version.String()
	rootCmd.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")

	rootCmd.AddCommand(
		newStatusCmd(),
		newConnectCmd(),
		newDisconnectCmd(),
		newReloadCmd(),
		newLogsCmd(),
		newStopServiceCmd(),
		newRunCmd(),
		newConfigCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// serviceClient builds an IPC client from the shared token file. The
// returned client may point at a dead endpoint; callers deal with that.
func serviceClient() (*ipc.Client, error) {
	paths, err := config.Shared()
	if err != nil {
		return nil, fmt.Errorf("no usable settings directory: %w", err)
	}
	token, err := ipcauth.Load(paths.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read ipc token: %w", err)
	}
	return ipc.NewClient(paths.Endpoint, token), nil
}

// openStore opens the shared settings store with the machine secret key.
func openStore() (*settings.Store, error) {
	paths, err := config.Shared()
	if err != nil {
		return nil, fmt.Errorf("no usable settings directory: %w", err)
	}
	secrets, err := secret.Open(paths.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open secret store: %w", err)
	}
	return settings.NewStore(paths.SettingsFile, secrets), nil
}
