// Package server is the session supervisor: it owns the UDP control socket,
// hands each inbound datagram to a bounded pool of workers and writes
// responses back to the datagram's source address.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"

	"golang.org/x/sync/semaphore"

	"github.com/forumd-dev/forumd/internal/handler"
	"github.com/forumd-dev/forumd/internal/logger"
	"github.com/forumd-dev/forumd/internal/metrics"
	"github.com/forumd-dev/forumd/internal/protocol"
)

type Server struct {
	conn    *net.UDPConn
	handler *handler.Handler
	workers *semaphore.Weighted
}

func New(conn *net.UDPConn, h *handler.Handler, maxWorkers int64) *Server {
	if maxWorkers <= 0 {
		maxWorkers = 64
	}
	return &Server{
		conn:    conn,
		handler: h,
		workers: semaphore.NewWeighted(maxWorkers),
	}
}

// Serve reads control datagrams until ctx is cancelled or the socket is
// closed. Acquiring a worker slot blocks the read loop when the pool is
// full, which is the backpressure: the kernel queues (and eventually drops)
// datagrams instead of the process growing unboundedly.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.conn.Close()
	}()

	buf := make([]byte, protocol.MaxDatagramSize)
	for {
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("read control socket: %w", err)
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])

		if err := s.workers.Acquire(ctx, 1); err != nil {
			return nil
		}
		go func(payload []byte, addr *net.UDPAddr) {
			defer s.workers.Release(1)
			s.handleDatagram(payload, addr)
		}(payload, addr)
	}
}

// handleDatagram decodes and dispatches one datagram. A panicking worker is
// recovered so one broken session cannot take down the others; store locks
// are released by defer inside the store itself.
func (s *Server) handleDatagram(payload []byte, addr *net.UDPAddr) {
	metrics.WorkersInFlight.Inc()
	defer metrics.WorkersInFlight.Dec()
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error("worker panic recovered", "addr", addr.String(), "panic", r)
		}
	}()

	req, err := protocol.DecodeRequest(payload)
	if err != nil {
		if req == nil || req.RequestId == "" {
			// Nothing to correlate a reply with.
			metrics.DatagramsDropped.WithLabelValues("undecodable").Inc()
			logger.Log.Warn("dropping undecodable datagram", "addr", addr.String(), "error", err)
			return
		}
		metrics.DatagramsDropped.WithLabelValues("invalid").Inc()
		s.respond(addr, &protocol.Response{RequestId: req.RequestId, Status: protocol.StatusMalformed})
		return
	}

	s.handler.Handle(addr.String(), req, func(resp *protocol.Response) {
		s.respond(addr, resp)
	})
}

func (s *Server) respond(addr *net.UDPAddr, resp *protocol.Response) {
	data, err := protocol.EncodeResponse(resp)
	if err != nil {
		logger.Log.Error("failed to encode response", "error", err)
		return
	}
	if _, err := s.conn.WriteToUDP(data, addr); err != nil {
		logger.Log.Warn("failed to send response", "addr", addr.String(), "error", err)
	}
}
