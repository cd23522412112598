//go:build windows

package ipc

import (
	"net"
	"time"

	"github.com/Microsoft/go-winio"
)

// pipeSecurity grants full access to SYSTEM and Administrators and
// read/write to Authenticated Users, so any logged-in desktop session can
// reach the service pipe. The token is the authentication layer.
const pipeSecurity = "D:P(A;;GA;;;SY)(A;;GA;;;BA)(A;;GRGW;;;AU)"

func listen(endpoint string) (net.Listener, error) {
	return winio.ListenPipe(endpoint, &winio.PipeConfig{
		SecurityDescriptor: pipeSecurity,
	})
}

func dial(endpoint string, timeout time.Duration) (net.Conn, error) {
	return winio.DialPipe(endpoint, &timeout)
}

func cleanupEndpoint(string) {
	// Named pipes vanish with their listener.
}
