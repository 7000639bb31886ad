package transfer

import (
	"bytes"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internal_errors "github.com/forumd-dev/forumd/internal/errors"
)

func newTestAcceptor(t *testing.T, timeout time.Duration) *Acceptor {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	a := NewAcceptor(listener, timeout)
	t.Cleanup(func() { a.Close() })
	return a
}

// receive claims the slot, receives one upload and releases.
func receive(a *Acceptor, declaredSize int64) ([]byte, error) {
	sess := a.Begin()
	defer sess.Close()
	return sess.Receive(declaredSize)
}

func TestUploadRoundTrip(t *testing.T) {
	a := newTestAcceptor(t, 2*time.Second)
	payload := bytes.Repeat([]byte("x"), 100)

	errCh := make(chan error, 1)
	go func() {
		errCh <- Upload(a.Addr().String(), 2*time.Second, payload)
	}()

	data, err := receive(a, int64(len(payload)))
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	require.NoError(t, <-errCh)
}

func TestUploadTruncated(t *testing.T) {
	a := newTestAcceptor(t, 2*time.Second)

	// 80 bytes on the wire against a declaration of 100.
	go Upload(a.Addr().String(), 2*time.Second, bytes.Repeat([]byte("x"), 80))

	_, err := receive(a, 100)
	assert.ErrorIs(t, err, internal_errors.ErrCorrupted)
}

func TestUploadOversized(t *testing.T) {
	a := newTestAcceptor(t, 2*time.Second)

	go Upload(a.Addr().String(), 2*time.Second, bytes.Repeat([]byte("x"), 120))

	_, err := receive(a, 100)
	assert.ErrorIs(t, err, internal_errors.ErrCorrupted)
}

func TestUploadEmptyFile(t *testing.T) {
	a := newTestAcceptor(t, 2*time.Second)

	go Upload(a.Addr().String(), 2*time.Second, nil)

	data, err := receive(a, 0)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestDownloadRoundTrip(t *testing.T) {
	a := newTestAcceptor(t, 2*time.Second)
	payload := []byte("file contents")

	errCh := make(chan error, 1)
	go func() {
		sess := a.Begin()
		defer sess.Close()
		errCh <- sess.Send(payload)
	}()

	data, err := Download(a.Addr().String(), 2*time.Second, int64(len(payload)))
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	require.NoError(t, <-errCh)
}

func TestDownloadTruncated(t *testing.T) {
	a := newTestAcceptor(t, 2*time.Second)
	payload := []byte("short")

	go func() {
		sess := a.Begin()
		defer sess.Close()
		sess.Send(payload)
	}()

	// Client was promised more bytes than the server wrote.
	_, err := Download(a.Addr().String(), 2*time.Second, int64(len(payload))+10)
	assert.ErrorIs(t, err, internal_errors.ErrCorrupted)
}

func TestReceiveAcceptTimeout(t *testing.T) {
	a := newTestAcceptor(t, 50*time.Millisecond)

	start := time.Now()
	_, err := receive(a, 10)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	// The endpoint survives a timed-out transfer and serves the next one.
	go Upload(a.Addr().String(), 2*time.Second, []byte("ok"))
	data, err := receive(a, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), data)
}

func TestBeginHoldsEndpointExclusively(t *testing.T) {
	a := newTestAcceptor(t, 2*time.Second)

	first := a.Begin()

	var secondHeld atomic.Bool
	acquired := make(chan struct{})
	go func() {
		second := a.Begin()
		secondHeld.Store(true)
		close(acquired)
		second.Close()
	}()

	// While the first claim is held no other transfer may own the endpoint,
	// so a peer connecting now can only be accepted by the first transfer.
	time.Sleep(50 * time.Millisecond)
	assert.False(t, secondHeld.Load())

	first.Close()
	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("second transfer never acquired the endpoint")
	}

	// Close is idempotent.
	first.Close()
}
