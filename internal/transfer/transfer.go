// Package transfer implements the data channel of the file sub-protocol:
// transient, single-use TCP connections that move one file's bytes each.
// Negotiation stays on the control channel; this package only accepts (or
// dials) the stream, moves bytes and closes it.
package transfer

import (
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/forumd-dev/forumd/internal/errors"
	"github.com/forumd-dev/forumd/internal/logger"
	"github.com/forumd-dev/forumd/internal/metrics"
)

// Acceptor owns the server-side TCP listener. The listener is shared, but a
// transfer holds it exclusively from Begin to Close, so one connection
// serves exactly one transfer and a peer connecting for one transfer can
// never be accepted by another.
type Acceptor struct {
	listener net.Listener
	timeout  time.Duration

	mu sync.Mutex // serializes transfers over the single endpoint
}

func NewAcceptor(listener net.Listener, timeout time.Duration) *Acceptor {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Acceptor{listener: listener, timeout: timeout}
}

func (a *Acceptor) Close() error {
	return a.listener.Close()
}

// Addr returns the listener address, for tests binding port 0.
func (a *Acceptor) Addr() net.Addr {
	return a.listener.Addr()
}

// accept waits for the peer with a deadline. Only TCPListener supports
// accept deadlines, which is the only listener used outside tests.
func (a *Acceptor) accept() (net.Conn, error) {
	if tcp, ok := a.listener.(*net.TCPListener); ok {
		if err := tcp.SetDeadline(time.Now().Add(a.timeout)); err != nil {
			return nil, fmt.Errorf("set accept deadline: %w", err)
		}
	}
	conn, err := a.listener.Accept()
	if err != nil {
		return nil, fmt.Errorf("accept transfer connection: %w", err)
	}
	conn.SetDeadline(time.Now().Add(a.timeout))
	return conn, nil
}

// Begin claims the transfer slot, blocking while another transfer holds it.
// The peer may only be told to connect after Begin has returned; until then
// any inbound connection belongs to the transfer that owns the slot.
func (a *Acceptor) Begin() *Session {
	a.mu.Lock()
	return &Session{acceptor: a}
}

// Session is one exclusive claim on the transfer endpoint, good for a single
// Receive or Send. Close releases the slot and is safe to call twice.
type Session struct {
	acceptor *Acceptor
	once     sync.Once
}

func (s *Session) Close() {
	s.once.Do(s.acceptor.mu.Unlock)
}

// Receive accepts one upload connection, reads until the peer closes and
// verifies the byte count against the declared size. On any mismatch the
// data is discarded and ErrCorrupted returned. The connection is closed on
// every path.
func (s *Session) Receive(declaredSize int64) ([]byte, error) {
	a := s.acceptor
	conn, err := a.accept()
	if err != nil {
		metrics.TransfersTotal.WithLabelValues("upload", "accept_timeout").Inc()
		return nil, err
	}
	defer conn.Close()

	// Cap the read at one byte past the declaration so an over-long stream
	// is detected without buffering it all.
	data, err := io.ReadAll(io.LimitReader(conn, declaredSize+1))
	if err != nil {
		metrics.TransfersTotal.WithLabelValues("upload", "read_error").Inc()
		return nil, fmt.Errorf("read upload stream: %w", err)
	}
	if int64(len(data)) != declaredSize {
		logger.Log.Warn("upload size mismatch", "declared", declaredSize, "received", len(data))
		metrics.TransfersTotal.WithLabelValues("upload", "corrupted").Inc()
		return nil, errors.ErrCorrupted
	}

	metrics.TransfersTotal.WithLabelValues("upload", "ok").Inc()
	metrics.TransferBytes.WithLabelValues("upload").Observe(float64(len(data)))
	return data, nil
}

// Send accepts one download connection, writes data and closes. The client
// verifies the byte count on its side.
func (s *Session) Send(data []byte) error {
	a := s.acceptor
	conn, err := a.accept()
	if err != nil {
		metrics.TransfersTotal.WithLabelValues("download", "accept_timeout").Inc()
		return err
	}
	defer conn.Close()

	if _, err := conn.Write(data); err != nil {
		metrics.TransfersTotal.WithLabelValues("download", "write_error").Inc()
		return fmt.Errorf("write download stream: %w", err)
	}

	metrics.TransfersTotal.WithLabelValues("download", "ok").Inc()
	metrics.TransferBytes.WithLabelValues("download").Observe(float64(len(data)))
	return nil
}

// Upload is the client side: dial, write exactly the file bytes, close.
func Upload(addr string, timeout time.Duration, data []byte) error {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return fmt.Errorf("dial transfer endpoint: %w", err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(timeout))
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("write upload stream: %w", err)
	}
	return nil
}

// Download is the client side: dial, read until the server closes, verify
// the byte count against the advertised size.
func Download(addr string, timeout time.Duration, advertisedSize int64) ([]byte, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial transfer endpoint: %w", err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(timeout))
	data, err := io.ReadAll(io.LimitReader(conn, advertisedSize+1))
	if err != nil {
		return nil, fmt.Errorf("read download stream: %w", err)
	}
	if int64(len(data)) != advertisedSize {
		return nil, errors.ErrCorrupted
	}
	return data, nil
}
