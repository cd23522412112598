package ipc

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// probeTimeout keeps availability checks snappy. A service on a local
// socket or pipe either answers immediately or is not there.
const probeTimeout = 100 * time.Millisecond

// Client issues one-shot commands to the control server.
type Client struct {
	endpoint string
	token    string
}

// NewClient creates a client for the given endpoint and token. An empty
// token is allowed; the server will answer "unauthorized".
func NewClient(endpoint, token string) *Client {
	return &Client{endpoint: endpoint, token: token}
}

// Probe reports whether something is accepting connections on the
// endpoint. It says nothing about authentication.
func (c *Client) Probe() bool {
	conn, err := dial(c.endpoint, probeTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Send issues one command and returns the raw reply. The whole exchange is
// bounded by timeout. A connection failure means no service is reachable.
func (c *Client) Send(cmd string, timeout time.Duration) (string, error) {
	conn, err := dial(c.endpoint, timeout)
	if err != nil {
		return "", fmt.Errorf("service unreachable: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(timeout)
	conn.SetDeadline(deadline)

	if _, err := io.WriteString(conn, c.token+"\n"+cmd+"\n"); err != nil {
		return "", fmt.Errorf("failed to send %s: %w", cmd, err)
	}
	reply, err := io.ReadAll(conn)
	if err != nil {
		return "", fmt.Errorf("failed to read reply for %s: %w", cmd, err)
	}
	return string(reply), nil
}

// Do sends a command that is expected to answer "ok" and converts any
// other reply into an error.
func (c *Client) Do(cmd string, timeout time.Duration) error {
	reply, err := c.Send(cmd, timeout)
	if err != nil {
		return err
	}
	switch strings.TrimSpace(reply) {
	case ReplyOK:
		return nil
	case ReplyUnauthorized:
		return fmt.Errorf("service rejected the token; is the shared directory readable?")
	default:
		return fmt.Errorf("service answered %q to %s", reply, cmd)
	}
}
