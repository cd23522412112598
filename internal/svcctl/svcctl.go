// Package svcctl installs and drives the background service through the
// platform's service manager: systemd on Linux, the Service Control
// Manager on Windows. All verbs require elevation; the underlying tools
// report a permission error otherwise.
package svcctl

// ServiceName is the identifier registered with the service manager.
const ServiceName = "mpmd"

// Config describes the installed service.
type Config struct {
	// ExePath is the absolute path of the service binary.
	ExePath string
	// Description shows up in the service manager UI.
	Description string
}

// Install registers the service and enables start-at-boot.
func Install(cfg Config) error {
	return install(cfg)
}

// Uninstall stops the service if needed and removes the registration.
func Uninstall() error {
	return uninstall()
}

// Start starts the registered service.
func Start() error {
	return start()
}

// Stop stops the registered service.
func Stop() error {
	return stop()
}

// Restart stops then starts the registered service.
func Restart() error {
	if err := stop(); err != nil {
		return err
	}
	return start()
}

// IsActive reports whether the service manager considers the service
// running.
func IsActive() bool {
	return isActive()
}
