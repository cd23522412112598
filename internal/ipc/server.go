// Package ipc implements the local control channel between the interactive
// client and the background service. The protocol is a single exchange per
// connection: the client writes its token and one command, each on its own
// line, and the service answers with one reply and closes.
package ipc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mpm-project/mpm/internal/session"
)

// Commands understood by the service.
const (
	CmdStatus          = "status"
	CmdStatus2         = "status2"
	CmdGetLogs         = "getlogs"
	CmdReloadSettings  = "reload-settings"
	CmdConnect         = "connect"
	CmdDisconnect      = "disconnect"
	CmdShutdownService = "shutdown-service"
)

// Replies with fixed wording.
const (
	ReplyOK           = "ok"
	ReplyUnauthorized = "unauthorized"
	ReplyErr          = "err"
)

// readTimeout bounds how long one connection may take to deliver its
// request. A stalled or hostile peer is cut off, never the accept loop.
const readTimeout = time.Second

// Session is the slice of the session manager the IPC surface needs.
type Session interface {
	Status() session.Status
	Connect()
	Disconnect(userInitiated bool)
	Reload()
}

// LogSource drains buffered log lines for the getlogs command.
type LogSource interface {
	TakeRecent() []string
}

// Server accepts control connections on a local endpoint. It implements the
// runtime service contract so the host manages its lifecycle.
type Server struct {
	endpoint string
	token    string
	session  Session
	logs     LogSource
	shutdown func()

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// NewServer creates a control server. shutdown is invoked, at most once per
// request, after a shutdown-service reply has been written.
func NewServer(endpoint, token string, sess Session, logs LogSource, shutdown func()) *Server {
	return &Server{
		endpoint: endpoint,
		token:    token,
		session:  sess,
		logs:     logs,
		shutdown: shutdown,
	}
}

func (s *Server) Start(ctx context.Context) error {
	if s.endpoint == "" {
		return fmt.Errorf("ipc endpoint is empty")
	}
	if s.token == "" {
		return fmt.Errorf("ipc token is empty")
	}

	listener, err := listen(s.endpoint)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.endpoint, err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.wg.Add(1)
	go s.acceptLoop(ctx, listener)

	log.Printf("[IPC] listening on %s", s.endpoint)
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	listener := s.listener
	s.listener = nil
	s.mu.Unlock()

	if listener != nil {
		listener.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}

	cleanupEndpoint(s.endpoint)
	return nil
}

func (s *Server) acceptLoop(ctx context.Context, listener net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}

			if errors.Is(err, net.ErrClosed) {
				return
			}

			log.Printf("[IPC] accept failed: %v", err)
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(readTimeout))

	r := bufio.NewReader(conn)
	tokenLine, err := r.ReadString('\n')
	if err != nil {
		return
	}
	cmdLine, err := r.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return
	}

	token := strings.TrimRight(tokenLine, "\r\n")
	cmd := strings.TrimSpace(cmdLine)

	if token != s.token {
		log.Printf("[IPC] rejected request with bad token")
		io.WriteString(conn, ReplyUnauthorized)
		return
	}

	reply, shutdownAfter := s.dispatch(cmd)
	io.WriteString(conn, reply)
	if shutdownAfter && s.shutdown != nil {
		// Reply first so the client sees "ok" before the service goes away.
		go s.shutdown()
	}
}

func (s *Server) dispatch(cmd string) (reply string, shutdownAfter bool) {
	switch cmd {
	case CmdStatus:
		return strconv.Itoa(int(s.session.Status().State)), false
	case CmdStatus2:
		st := s.session.Status()
		return fmt.Sprintf("%d,%d,%d", int(st.State), boolInt(st.ReconnectArmed), boolInt(st.UserDisconnected)), false
	case CmdGetLogs:
		if s.logs == nil {
			return "", false
		}
		return strings.Join(s.logs.TakeRecent(), "\n"), false
	case CmdReloadSettings:
		s.session.Reload()
		return ReplyOK, false
	case CmdConnect:
		s.session.Connect()
		return ReplyOK, false
	case CmdDisconnect:
		s.session.Disconnect(true)
		return ReplyOK, false
	case CmdShutdownService:
		log.Printf("[IPC] shutdown requested")
		return ReplyOK, true
	default:
		log.Printf("[IPC] unknown command %q", cmd)
		return ReplyErr, false
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
