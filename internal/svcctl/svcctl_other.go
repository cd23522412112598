//go:build !linux && !windows

package svcctl

import "fmt"

var errUnsupported = fmt.Errorf("service management is not supported on this platform; use %q directly", "mpmd run")

func install(Config) error { return errUnsupported }
func uninstall() error     { return errUnsupported }
func start() error         { return errUnsupported }
func stop() error          { return errUnsupported }
func isActive() bool       { return false }
