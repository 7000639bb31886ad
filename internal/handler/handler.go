// Package handler is the command dispatcher: it routes one decoded control
// request to the operation it names, enforcing the auth gate, per-command
// preconditions and idempotency under retransmission. A response is terminal
// for its request: once an error response is chosen nothing else runs.
package handler

import (
	"sync"

	"github.com/forumd-dev/forumd/internal/errors"
	"github.com/forumd-dev/forumd/internal/logger"
	"github.com/forumd-dev/forumd/internal/metrics"
	"github.com/forumd-dev/forumd/internal/protocol"
	"github.com/forumd-dev/forumd/internal/service"
	"github.com/forumd-dev/forumd/internal/store"
)

// Responder delivers one response datagram back to the requesting address.
// UPD and DWN emit a negotiation response before the final one.
type Responder func(resp *protocol.Response)

// Transfers hands out exclusive claims on the data channel. A claim must be
// held before the peer is told to connect, so two concurrent transfers can
// never accept each other's connections.
type Transfers interface {
	Begin() TransferSession
}

// TransferSession is one claimed transfer: a single Receive or Send, then
// Close to release the endpoint.
type TransferSession interface {
	Receive(declaredSize int64) ([]byte, error)
	Send(data []byte) error
	Close()
}

type Handler struct {
	auth      *service.Auth
	forum     *service.Forum
	recent    *store.ResponseCache
	transfers Transfers

	mu       sync.Mutex
	inFlight map[string]struct{} // request ids currently being handled
}

func New(auth *service.Auth, forum *service.Forum, recent *store.ResponseCache, transfers Transfers) *Handler {
	return &Handler{
		auth:      auth,
		forum:     forum,
		recent:    recent,
		transfers: transfers,
		inFlight:  make(map[string]struct{}),
	}
}

// Handle processes one request. Retransmitted duplicates of an already
// answered request are served from the recent-response cache; duplicates of
// a request still being handled are dropped so a slow transfer is not run
// twice.
func (h *Handler) Handle(addr string, req *protocol.Request, respond Responder) {
	if cached, ok := h.recent.Get(req.RequestId); ok {
		cached.RequestId = req.RequestId
		respond(cached)
		return
	}

	h.mu.Lock()
	if _, busy := h.inFlight[req.RequestId]; busy {
		h.mu.Unlock()
		metrics.DatagramsDropped.WithLabelValues("duplicate_in_flight").Inc()
		return
	}
	h.inFlight[req.RequestId] = struct{}{}
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.inFlight, req.RequestId)
		h.mu.Unlock()
	}()

	var final *protocol.Response
	send := func(resp *protocol.Response) {
		resp.RequestId = req.RequestId
		final = resp
		respond(resp)
	}

	logger.Log.Info("command received", "user", req.Username, "command", req.Command)
	h.dispatch(addr, req, send)

	if final != nil {
		metrics.CommandsTotal.WithLabelValues(req.Command, final.Status).Inc()
		h.recent.Put(req.RequestId, final)
	}
}

func (h *Handler) dispatch(addr string, req *protocol.Request, send Responder) {
	if req.Command == protocol.CmdAuth {
		h.handleAuth(addr, req, send)
		return
	}

	// XIT skips the online requirement so a logout that already happened
	// answers NOT_ONLINE rather than AUTH_REQUIRED; identity is still checked.
	if req.Command == protocol.CmdExit {
		if err := h.auth.CheckCredentials(req.Username, req.Password, req.Token); err != nil {
			send(&protocol.Response{Status: errors.StatusOf(err)})
			return
		}
		h.handleExit(addr, req, send)
		return
	}

	if err := h.auth.Authorize(req.Username, req.Password, req.Token); err != nil {
		send(&protocol.Response{Status: errors.StatusOf(err)})
		return
	}

	switch req.Command {
	case protocol.CmdCreate:
		h.handleCreate(req, send)
	case protocol.CmdList:
		h.handleList(req, send)
	case protocol.CmdPost:
		h.handlePost(req, send)
	case protocol.CmdDelete:
		h.handleDelete(req, send)
	case protocol.CmdRead:
		h.handleRead(req, send)
	case protocol.CmdEdit:
		h.handleEdit(req, send)
	case protocol.CmdUpload:
		h.handleUpload(req, send)
	case protocol.CmdDownload:
		h.handleDownload(req, send)
	case protocol.CmdRemove:
		h.handleRemove(req, send)
	case protocol.CmdReport:
		h.handleReport(req, send)
	default:
		send(&protocol.Response{Status: protocol.StatusMalformed})
	}
}

func (h *Handler) handleAuth(addr string, req *protocol.Request, send Responder) {
	var step service.LoginStep
	if req.Password == "" {
		step = h.auth.Probe(addr, req.Username)
	} else {
		step = h.auth.Submit(addr, req.Username, req.Password)
	}
	metrics.AuthTotal.WithLabelValues(step.Status).Inc()
	send(&protocol.Response{Status: step.Status, Type: step.Type, Token: step.Token})
}

func (h *Handler) handleExit(addr string, req *protocol.Request, send Responder) {
	if err := h.auth.Logout(req.Username); err != nil {
		send(&protocol.Response{Status: errors.StatusOf(err)})
		return
	}
	send(&protocol.Response{Status: protocol.StatusOK})
}
