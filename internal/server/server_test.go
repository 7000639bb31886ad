package server_test

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forumd-dev/forumd/internal/client"
	"github.com/forumd-dev/forumd/internal/config"
	"github.com/forumd-dev/forumd/internal/protocol"
	"github.com/forumd-dev/forumd/internal/setup"
	"github.com/forumd-dev/forumd/internal/transfer"
)

const testTimeout = 500 * time.Millisecond

// startTestServer boots a full server (memory-only store) on a random
// loopback port shared by the control socket and the stream endpoint.
func startTestServer(t *testing.T) string {
	t.Helper()
	for attempt := 0; attempt < 20; attempt++ {
		port := 20000 + rand.Intn(20000)
		cfg := config.Default()
		cfg.Server.Host = "127.0.0.1"
		cfg.Server.Port = port
		cfg.Server.RequestTimeout = config.Duration(testTimeout)
		cfg.Storage.DataDir = ""

		deps, err := setup.Build(cfg)
		if err != nil {
			continue // port taken, try another
		}

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			deps.Server.Serve(ctx)
		}()
		t.Cleanup(func() {
			cancel()
			deps.Acceptor.Close()
			<-done
		})
		return fmt.Sprintf("127.0.0.1:%d", port)
	}
	t.Fatal("could not find a free port")
	return ""
}

func dialTestClient(t *testing.T, addr string) *client.Client {
	t.Helper()
	c, err := client.Dial(addr, testTimeout, 3)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

// login drives the full handshake for a fresh or known user.
func login(t *testing.T, c *client.Client, username, password string) *protocol.Response {
	t.Helper()
	probe, err := c.Probe(username)
	require.NoError(t, err)
	require.Equal(t, protocol.StatusPasswordNeed, probe.Status)
	resp, err := c.Login(username, password)
	require.NoError(t, err)
	return resp
}

func TestScenarioNewUserPostsAndReads(t *testing.T) {
	addr := startTestServer(t)
	c := dialTestClient(t, addr)

	probe, err := c.Probe("alice")
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeNewUser, probe.Type)

	resp, err := c.Login("alice", "pw1")
	require.NoError(t, err)
	require.Equal(t, protocol.StatusOK, resp.Status)

	resp, err = c.CreateThread("general")
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusOK, resp.Status)

	resp, err = c.PostMessage("general", "hello")
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusOK, resp.Status)

	resp, err = c.ReadThread("general")
	require.NoError(t, err)
	require.Equal(t, protocol.StatusOK, resp.Status)
	assert.Equal(t, []string{"1 alice: hello"}, resp.Messages)
}

func TestScenarioConcurrentLoginSameName(t *testing.T) {
	addr := startTestServer(t)

	const clients = 2
	results := make(chan string, clients)
	var wg sync.WaitGroup
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := client.Dial(addr, testTimeout, 3)
			if err != nil {
				results <- "dial error"
				return
			}
			defer c.Close()
			c.Probe("alice")
			resp, err := c.Login("alice", "pw1")
			if err != nil {
				results <- "send error"
				return
			}
			results <- resp.Status
		}()
	}
	wg.Wait()
	close(results)

	var ok, rejected int
	for status := range results {
		switch status {
		case protocol.StatusOK:
			ok++
		case protocol.StatusError, protocol.StatusFail:
			rejected++
		default:
			t.Fatalf("unexpected outcome %q", status)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, clients-1, rejected)
}

func TestScenarioUploadDownloadRoundTrip(t *testing.T) {
	addr := startTestServer(t)
	c := dialTestClient(t, addr)

	require.Equal(t, protocol.StatusOK, login(t, c, "alice", "pw1").Status)
	resp, err := c.CreateThread("general")
	require.NoError(t, err)
	require.Equal(t, protocol.StatusOK, resp.Status)

	payload := make([]byte, 1000)
	for i := range payload {
		payload[i] = byte(i % 251)
	}

	resp, err = c.Upload("general", "report.bin", payload)
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusOK, resp.Status)

	data, err := c.Download("general", "report.bin")
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestStalledUploadDoesNotCaptureNextTransfer(t *testing.T) {
	addr := startTestServer(t)
	a := dialTestClient(t, addr)

	require.Equal(t, protocol.StatusOK, login(t, a, "alice", "pw1").Status)
	for _, title := range []string{"alpha", "beta"} {
		resp, err := a.CreateThread(title)
		require.NoError(t, err)
		require.Equal(t, protocol.StatusOK, resp.Status)
	}

	// Negotiate an upload into alpha but never connect. The endpoint stays
	// claimed by this transfer until its accept deadline expires.
	updA := &protocol.Request{
		RequestId:   uuid.NewString(),
		Command:     protocol.CmdUpload,
		Username:    "alice",
		Password:    "pw1",
		ThreadTitle: "alpha",
		FileName:    "f.txt",
		FileSize:    4,
	}
	resp, err := a.Send(updA)
	require.NoError(t, err)
	require.Equal(t, protocol.StatusUpload, resp.Status)

	// A second upload negotiated meanwhile must wait for the endpoint; its
	// ready response only arrives once its transfer owns the listener, so
	// the connection below cannot be accepted by the stalled one.
	b, err := client.Dial(addr, 2*time.Second, 3)
	require.NoError(t, err)
	defer b.Close()

	updB := &protocol.Request{
		RequestId:   uuid.NewString(),
		Command:     protocol.CmdUpload,
		Username:    "alice",
		Password:    "pw1",
		ThreadTitle: "beta",
		FileName:    "g.txt",
		FileSize:    4,
	}
	resp, err = b.Send(updB)
	require.NoError(t, err)
	require.Equal(t, protocol.StatusUpload, resp.Status)

	require.NoError(t, transfer.Upload(addr, time.Second, []byte("BOBB")))
	final, err := b.Send(updB)
	require.NoError(t, err)
	require.Equal(t, protocol.StatusOK, final.Status)

	// The bytes landed under beta/g.txt.
	dwn := &protocol.Request{
		RequestId:   uuid.NewString(),
		Command:     protocol.CmdDownload,
		Username:    "alice",
		Password:    "pw1",
		ThreadTitle: "beta",
		FileName:    "g.txt",
	}
	resp, err = b.Send(dwn)
	require.NoError(t, err)
	require.Equal(t, protocol.StatusFileFound, resp.Status)
	data, err := transfer.Download(addr, time.Second, resp.FileSize)
	require.NoError(t, err)
	assert.Equal(t, []byte("BOBB"), data)

	// Nothing was ever stored under the stalled transfer's name.
	dwnA := &protocol.Request{
		RequestId:   uuid.NewString(),
		Command:     protocol.CmdDownload,
		Username:    "alice",
		Password:    "pw1",
		ThreadTitle: "alpha",
		FileName:    "f.txt",
	}
	resp, err = b.Send(dwnA)
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusFileNotFound, resp.Status)
}

func TestScenarioTruncatedUploadDiscarded(t *testing.T) {
	addr := startTestServer(t)
	c := dialTestClient(t, addr)

	require.Equal(t, protocol.StatusOK, login(t, c, "alice", "pw1").Status)
	resp, err := c.CreateThread("general")
	require.NoError(t, err)
	require.Equal(t, protocol.StatusOK, resp.Status)

	// Declare 100 bytes but close the stream after 80.
	upd := &protocol.Request{
		RequestId:   uuid.NewString(),
		Command:     protocol.CmdUpload,
		Username:    "alice",
		Password:    "pw1",
		ThreadTitle: "general",
		FileName:    "report.txt",
		FileSize:    100,
	}
	resp, err = c.Send(upd)
	require.NoError(t, err)
	require.Equal(t, protocol.StatusUpload, resp.Status)

	require.NoError(t, transfer.Upload(addr, testTimeout, make([]byte, 80)))

	final, err := c.Send(upd)
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusCorrupted, final.Status)

	// The partial attachment was never registered.
	dwn := &protocol.Request{
		RequestId:   uuid.NewString(),
		Command:     protocol.CmdDownload,
		Username:    "alice",
		Password:    "pw1",
		ThreadTitle: "general",
		FileName:    "report.txt",
	}
	resp, err = c.Send(dwn)
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusFileNotFound, resp.Status)
}

func TestScenarioConcurrentCreateSameTitle(t *testing.T) {
	addr := startTestServer(t)

	const k = 4
	results := make(chan string, k)
	var wg sync.WaitGroup
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := client.Dial(addr, testTimeout, 3)
			if err != nil {
				results <- "dial error"
				return
			}
			defer c.Close()
			username := fmt.Sprintf("user%d", i)
			c.Probe(username)
			if resp, err := c.Login(username, "pw"); err != nil || resp.Status != protocol.StatusOK {
				results <- "login failed"
				return
			}
			resp, err := c.CreateThread("general")
			if err != nil {
				results <- "send error"
				return
			}
			results <- resp.Status
		}(i)
	}
	wg.Wait()
	close(results)

	var ok, exists int
	for status := range results {
		switch status {
		case protocol.StatusOK:
			ok++
		case protocol.StatusExists:
			exists++
		default:
			t.Fatalf("unexpected outcome %q", status)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, k-1, exists)
}

func TestScenarioLogoutAndRelogin(t *testing.T) {
	addr := startTestServer(t)
	c := dialTestClient(t, addr)

	require.Equal(t, protocol.StatusOK, login(t, c, "alice", "pw1").Status)

	resp, err := c.Exit()
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusOK, resp.Status)

	// The same name logs back in as a known user.
	probe, err := c.Probe("alice")
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeKnownUser, probe.Type)
	resp, err = c.Login("alice", "pw1")
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusOK, resp.Status)

	// Wrong password after logout is rejected.
	c2 := dialTestClient(t, addr)
	resp, err = c2.Login("alice", "wrong")
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusFail, resp.Status)
}

func TestMalformedDatagramAnswered(t *testing.T) {
	addr := startTestServer(t)

	// Missing username: invalid but correlatable, so the server answers
	// MALFORMED instead of staying silent. Sent over a raw socket since
	// the client-side codec refuses to encode it.
	conn, err := net.Dial("udp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte(`{"request_id":"bad-1","command":"CRT"}`))
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(testTimeout)))
	buf := make([]byte, protocol.MaxDatagramSize)
	n, err := conn.Read(buf)
	require.NoError(t, err)

	resp, err := protocol.DecodeResponse(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, "bad-1", resp.RequestId)
	assert.Equal(t, protocol.StatusMalformed, resp.Status)
}

func TestTimeoutExhausted(t *testing.T) {
	// Nothing listens here.
	c, err := client.Dial("127.0.0.1:9", 50*time.Millisecond, 2)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Probe("alice")
	assert.ErrorIs(t, err, client.ErrTimeoutExhausted)
}
