package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	"github.com/mpm-project/mpm/internal/ipc"
	"github.com/mpm-project/mpm/internal/settings"
)

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:           "config",
		Short:         "Show or edit the shared settings file",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	showCmd := &cobra.Command{
		Use:           "show",
		Short:         "Print the current settings",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          configShow,
	}

	setCmd := &cobra.Command{
		Use:           "set <key> <value>",
		Short:         "Set one settings key (e.g. mqtt/host, user/customId)",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          configSet,
	}

	configCmd.AddCommand(showCmd, setCmd)
	return configCmd
}

func configShow(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	cfg, err := store.Load()
	if err != nil {
		return err
	}

	password := ""
	if cfg.Password != "" {
		password = "********"
	}
	fmt.Printf("user/customId: %s\n", cfg.CustomID)
	fmt.Printf("mqtt/host: %s\n", cfg.Host)
	fmt.Printf("mqtt/port: %d\n", cfg.Port)
	fmt.Printf("mqtt/username: %s\n", cfg.Username)
	fmt.Printf("mqtt/password: %s\n", password)
	fmt.Printf("options/printOnly: %v\n", cfg.PrintOnly)
	fmt.Printf("options/timeout: %d\n", cfg.TimeoutSec)
	fmt.Printf("options/autoConnect: %v\n", cfg.AutoConnect)
	fmt.Printf("options/autoReconnect: %v\n", cfg.AutoReconnect)
	fmt.Printf("options/reconnectSec: %d\n", cfg.ReconnectSec)
	fmt.Printf("service/serviceUseOnly: %v\n", cfg.ServiceUseOnly)
	for i, a := range cfg.Actions {
		fmt.Printf("action[%d]: name=%s message=%s type=%s exePath=%s\n",
			i, a.Name, a.Message, a.Type, a.ExePath)
	}
	return nil
}

// setters maps settings keys to field assignments. Values arrive as
// strings and are coerced leniently, matching how the file itself is read.
var setters = map[string]func(*settings.Settings, string) error{
	"user/customId":          func(s *settings.Settings, v string) error { s.CustomID = v; return nil },
	"mqtt/host":              func(s *settings.Settings, v string) error { s.Host = v; return nil },
	"mqtt/port":              func(s *settings.Settings, v string) error { return setInt(&s.Port, v) },
	"mqtt/username":          func(s *settings.Settings, v string) error { s.Username = v; return nil },
	"mqtt/password":          func(s *settings.Settings, v string) error { s.Password = v; return nil },
	"options/printOnly":      func(s *settings.Settings, v string) error { return setBool(&s.PrintOnly, v) },
	"options/timeout":        func(s *settings.Settings, v string) error { return setInt(&s.TimeoutSec, v) },
	"options/autoConnect":    func(s *settings.Settings, v string) error { return setBool(&s.AutoConnect, v) },
	"options/autoReconnect":  func(s *settings.Settings, v string) error { return setBool(&s.AutoReconnect, v) },
	"options/reconnectSec":   func(s *settings.Settings, v string) error { return setInt(&s.ReconnectSec, v) },
	"service/serviceUseOnly": func(s *settings.Settings, v string) error { return setBool(&s.ServiceUseOnly, v) },
}

func setInt(dst *int, v string) error {
	n, err := cast.ToIntE(v)
	if err != nil {
		return fmt.Errorf("not a number: %q", v)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, v string) error {
	b, err := cast.ToBoolE(v)
	if err != nil {
		return fmt.Errorf("not a boolean: %q", v)
	}
	*dst = b
	return nil
}

func configSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]
	setter, ok := setters[key]
	if !ok {
		keys := make([]string, 0, len(setters))
		for k := range setters {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return fmt.Errorf("unknown key %q; known keys: %v", key, keys)
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	cfg, err := store.Load()
	if err != nil {
		return err
	}
	if err := setter(cfg, value); err != nil {
		return err
	}
	if err := store.Save(cfg); err != nil {
		return err
	}
	fmt.Println("ok")

	// A running service picks the change up on its next reload; nudge it.
	if client, err := serviceClient(); err == nil && client.Probe() {
		client.Do(ipc.CmdReloadSettings, requestTimeout)
	}
	return nil
}
