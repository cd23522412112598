//go:build !windows

package ipc

import (
	"errors"
	"net"
	"os"
	"time"
)

// listen binds a unix socket at the endpoint path. A stale socket from a
// previous run is removed first. The socket is world-writable so an
// unprivileged desktop session can reach a root-owned service; the token
// is the authentication layer.
func listen(endpoint string) (net.Listener, error) {
	if err := os.Remove(endpoint); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	listener, err := net.Listen("unix", endpoint)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(endpoint, 0o666); err != nil {
		listener.Close()
		return nil, err
	}
	return listener, nil
}

func dial(endpoint string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("unix", endpoint, timeout)
}

func cleanupEndpoint(endpoint string) {
	os.Remove(endpoint)
}
