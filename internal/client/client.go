// Package client implements the client side of the control protocol: the
// reliable request channel (retransmission with bounded retries over UDP),
// the login flow and one method per forum command.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/forumd-dev/forumd/internal/protocol"
)

// ErrTimeoutExhausted is returned when the server stayed silent through the
// initial send and every retransmission. The server must be treated as
// unreachable for that request.
var ErrTimeoutExhausted = errors.New("no response after all retransmissions")

type Client struct {
	conn       *net.UDPConn
	streamAddr string
	timeout    time.Duration
	maxRetries int

	username string
	password string
	token    string
}

// Dial connects the control socket. addr is the server's host:port; the
// same port serves the transfer stream endpoint.
func Dial(addr string, timeout time.Duration, maxRetries int) (*Client, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve server address: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("dial control socket: %w", err)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Client{
		conn:       conn,
		streamAddr: addr,
		timeout:    timeout,
		maxRetries: maxRetries,
	}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Username returns the name the client authenticated as.
func (c *Client) Username() string {
	return c.username
}

// newRequest fills the envelope boilerplate: a fresh request id and the
// session credentials.
func (c *Client) newRequest(command string) *protocol.Request {
	return &protocol.Request{
		RequestId: uuid.NewString(),
		Command:   command,
		Username:  c.username,
		Password:  c.password,
		Token:     c.token,
	}
}

// Send transmits req and waits for its correlated response, retransmitting
// the identical payload on each timeout. skip lists statuses to read past,
// used when awaiting the final response of a transfer whose negotiation
// response may be duplicated.
func (c *Client) Send(req *protocol.Request) (*protocol.Response, error) {
	return c.exchange(req, "")
}

func (c *Client) exchange(req *protocol.Request, skipStatus string) (*protocol.Response, error) {
	payload, err := protocol.EncodeRequest(req)
	if err != nil {
		return nil, err
	}

	var resp *protocol.Response
	// The wait happens inside the attempt (read deadline), so the backoff
	// between attempts is effectively zero.
	backoff := retry.WithMaxRetries(uint64(c.maxRetries), retry.NewConstant(time.Nanosecond))
	err = retry.Do(context.Background(), backoff, func(ctx context.Context) error {
		if _, err := c.conn.Write(payload); err != nil {
			return retry.RetryableError(err)
		}
		r, err := c.await(req.RequestId, skipStatus)
		if err != nil {
			return retry.RetryableError(err)
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTimeoutExhausted, req.Command)
	}
	return resp, nil
}

// await reads datagrams until one carries a response for id, or the timeout
// window closes. Responses for other ids (stale duplicates) and responses
// with the skipped status are discarded.
func (c *Client) await(id, skipStatus string) (*protocol.Response, error) {
	deadline := time.Now().Add(c.timeout)
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	buf := make([]byte, protocol.MaxDatagramSize)
	for {
		n, err := c.conn.Read(buf)
		if err != nil {
			return nil, err
		}
		resp, err := protocol.DecodeResponse(buf[:n])
		if err != nil {
			continue
		}
		if resp.RequestId != id {
			continue
		}
		if skipStatus != "" && resp.Status == skipStatus {
			continue
		}
		return resp, nil
	}
}
