package client

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/forumd-dev/forumd/internal/protocol"
	"github.com/forumd-dev/forumd/internal/transfer"
)

// ErrCorrupted is returned when a completed transfer moved a different
// number of bytes than negotiated.
var ErrCorrupted = errors.New("file transfer corrupted")

// Probe starts the login handshake with a bare username and returns the
// server's verdict: TypeOnline (pick another name), TypeKnownUser or
// TypeNewUser (password needed).
func (c *Client) Probe(username string) (*protocol.Response, error) {
	req := &protocol.Request{
		RequestId: uuid.NewString(),
		Command:   protocol.CmdAuth,
		Username:  username,
	}
	return c.Send(req)
}

// Login finishes the handshake with the password. On success the client
// remembers the credentials and the issued session token for all following
// commands.
func (c *Client) Login(username, password string) (*protocol.Response, error) {
	req := &protocol.Request{
		RequestId: uuid.NewString(),
		Command:   protocol.CmdAuth,
		Username:  username,
		Password:  password,
	}
	resp, err := c.Send(req)
	if err != nil {
		return nil, err
	}
	if resp.Status == protocol.StatusOK {
		c.username = username
		c.password = password
		if resp.Token != "" {
			c.token = resp.Token
			c.password = "" // token supersedes the password on the wire
		}
	}
	return resp, nil
}

func (c *Client) CreateThread(title string) (*protocol.Response, error) {
	req := c.newRequest(protocol.CmdCreate)
	req.ThreadTitle = title
	return c.Send(req)
}

func (c *Client) ListThreads() (*protocol.Response, error) {
	return c.Send(c.newRequest(protocol.CmdList))
}

func (c *Client) PostMessage(title, text string) (*protocol.Response, error) {
	req := c.newRequest(protocol.CmdPost)
	req.ThreadTitle = title
	req.Message = text
	return c.Send(req)
}

func (c *Client) DeleteMessage(title string, index int) (*protocol.Response, error) {
	req := c.newRequest(protocol.CmdDelete)
	req.ThreadTitle = title
	req.MessageId = index
	return c.Send(req)
}

func (c *Client) ReadThread(title string) (*protocol.Response, error) {
	req := c.newRequest(protocol.CmdRead)
	req.ThreadTitle = title
	return c.Send(req)
}

func (c *Client) EditMessage(title string, index int, text string) (*protocol.Response, error) {
	req := c.newRequest(protocol.CmdEdit)
	req.ThreadTitle = title
	req.MessageId = index
	req.Message = text
	return c.Send(req)
}

func (c *Client) RemoveThread(title string) (*protocol.Response, error) {
	req := c.newRequest(protocol.CmdRemove)
	req.ThreadTitle = title
	return c.Send(req)
}

func (c *Client) Exit() (*protocol.Response, error) {
	resp, err := c.Send(c.newRequest(protocol.CmdExit))
	if err == nil && resp.Status == protocol.StatusOK {
		c.username, c.password, c.token = "", "", ""
	}
	return resp, err
}

// Upload negotiates an upload over the control channel, streams the bytes on
// the transfer endpoint and returns the server's final verdict.
func (c *Client) Upload(title, name string, data []byte) (*protocol.Response, error) {
	req := c.newRequest(protocol.CmdUpload)
	req.ThreadTitle = title
	req.FileName = name
	req.FileSize = int64(len(data))

	resp, err := c.Send(req)
	if err != nil {
		return nil, err
	}
	if resp.Status != protocol.StatusUpload {
		return resp, nil
	}

	if err := transfer.Upload(c.streamAddr, c.timeout, data); err != nil {
		return nil, fmt.Errorf("upload stream: %w", err)
	}

	// The final verdict reuses the request id; a duplicated UPLOAD
	// negotiation response must be read past, not taken as final.
	return c.exchange(req, protocol.StatusUpload)
}

// Download negotiates a download, reads the stream, verifies the byte count
// against the advertised size and reports the outcome back so the server
// can audit it. The returned bytes are nil unless the transfer was intact.
func (c *Client) Download(title, name string) ([]byte, error) {
	req := c.newRequest(protocol.CmdDownload)
	req.ThreadTitle = title
	req.FileName = name

	resp, err := c.Send(req)
	if err != nil {
		return nil, err
	}
	if resp.Status != protocol.StatusFileFound {
		return nil, fmt.Errorf("download refused: %s", resp.Status)
	}

	data, err := transfer.Download(c.streamAddr, c.timeout, resp.FileSize)

	report := c.newRequest(protocol.CmdReport)
	report.ThreadTitle = title
	report.FileName = name
	if err != nil {
		report.Report = protocol.StatusCorrupted
	} else {
		report.Report = protocol.StatusOK
	}
	// The report is an audit courtesy; its loss must not fail the download.
	c.Send(report)

	if err != nil {
		return nil, ErrCorrupted
	}
	return data, nil
}
