package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mpm-project/mpm/internal/controller"
	"github.com/mpm-project/mpm/internal/ipc"
	"github.com/mpm-project/mpm/internal/session"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Show the session state of the background service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := serviceClient()
			if err != nil {
				return err
			}
			ctl := controller.New(client, nil)
			if ctl.Mode() != controller.ModeRemote {
				fmt.Println("service: not running")
				return nil
			}
			snap := ctl.Status()
			if !snap.Available {
				fmt.Println("service: not answering")
				return nil
			}
			fmt.Printf("service: running\nsession: %s\n", snap.State)
			if snap.State == session.Disconnected {
				fmt.Printf("reconnect scheduled: %v\nuser disconnected: %v\n",
					snap.ReconnectArmed, snap.UserDisconnected)
			}
			return nil
		},
	}
}

func newConnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "connect",
		Short:         "Ask the service to connect to the broker",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          func(cmd *cobra.Command, args []string) error { return sendControl(ipc.CmdConnect) },
	}
}

func newDisconnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "disconnect",
		Short:         "Ask the service to disconnect from the broker",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          func(cmd *cobra.Command, args []string) error { return sendControl(ipc.CmdDisconnect) },
	}
}

func newReloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "reload",
		Short:         "Ask the service to re-read the settings file",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          func(cmd *cobra.Command, args []string) error { return sendControl(ipc.CmdReloadSettings) },
	}
}

func newStopServiceCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "stop-service",
		Short:         "Ask the service process to exit",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          func(cmd *cobra.Command, args []string) error { return sendControl(ipc.CmdShutdownService) },
	}
}

func newLogsCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "logs",
		Short:         "Drain and print the service's recent log lines",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := serviceClient()
			if err != nil {
				return err
			}
			reply, err := client.Send(ipc.CmdGetLogs, requestTimeout)
			if err != nil {
				return err
			}
			if reply != "" {
				fmt.Println(strings.TrimRight(reply, "\n"))
			}
			return nil
		},
	}
}

func sendControl(cmd string) error {
	client, err := serviceClient()
	if err != nil {
		return err
	}
	if err := client.Do(cmd, requestTimeout); err != nil {
		return err
	}
	fmt.Println("ok")
	return nil
}

// newRunCmd runs a session in this process. With a live service it follows
// the service instead: status updates and drained logs are printed until
// interrupted.
func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "run",
		Short:         "Run or follow a session in the foreground",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runForeground,
	}
}

func runForeground(cmd *cobra.Command, args []string) error {
	client, err := serviceClient()
	if err != nil {
		return err
	}
	store, err := openStore()
	if err != nil {
		return err
	}
	cfg, err := store.Load()
	if err != nil {
		return err
	}

	manager := session.NewManager(store, session.WithClientIDPrefix("MPMClient"))
	lastState := session.Disconnected
	ctl := controller.New(client, manager,
		controller.WithStatusFunc(func(snap controller.Snapshot) {
			if snap.Available && snap.State != lastState {
				lastState = snap.State
				log.Printf("[Client] service session: %s", snap.State)
			}
		}),
		controller.WithLogsFunc(func(lines []string) {
			for _, line := range lines {
				fmt.Println(line)
			}
		}),
	)

	if ctl.Mode() == controller.ModeRemote {
		log.Printf("[Client] following the background service")
		ctl.Start()
		defer ctl.Stop()
	} else {
		if cfg.ServiceUseOnly {
			return fmt.Errorf("settings restrict the session to the background service, which is not running")
		}
		log.Printf("[Client] no service found, running session in-process")
		if cfg.AutoConnect {
			manager.Connect()
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Printf("[Client] received signal %s, exiting", sig)

	if ctl.Mode() == controller.ModeLocal {
		manager.Disconnect(false)
	}
	return nil
}
