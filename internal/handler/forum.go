package handler

import (
	"github.com/forumd-dev/forumd/internal/errors"
	"github.com/forumd-dev/forumd/internal/logger"
	"github.com/forumd-dev/forumd/internal/protocol"
)

func (h *Handler) handleCreate(req *protocol.Request, send Responder) {
	if err := h.forum.CreateThread(req.ThreadTitle, req.Username); err != nil {
		send(&protocol.Response{Status: errors.StatusOf(err)})
		return
	}
	logger.Log.Info("thread created", "thread", req.ThreadTitle, "owner", req.Username)
	send(&protocol.Response{Status: protocol.StatusOK})
}

func (h *Handler) handleList(req *protocol.Request, send Responder) {
	titles := h.forum.ListThreads()
	if len(titles) == 0 {
		send(&protocol.Response{Status: protocol.StatusEmpty})
		return
	}
	send(&protocol.Response{Status: protocol.StatusOK, Threads: titles})
}

func (h *Handler) handlePost(req *protocol.Request, send Responder) {
	index, err := h.forum.PostMessage(req.ThreadTitle, req.Username, req.Message)
	if err != nil {
		send(&protocol.Response{Status: errors.StatusOf(err)})
		return
	}
	logger.Log.Info("message posted", "thread", req.ThreadTitle, "author", req.Username, "index", index)
	send(&protocol.Response{Status: protocol.StatusOK})
}

func (h *Handler) handleDelete(req *protocol.Request, send Responder) {
	if err := h.forum.DeleteMessage(req.ThreadTitle, req.Username, req.MessageId); err != nil {
		send(&protocol.Response{Status: errors.StatusOf(err)})
		return
	}
	logger.Log.Info("message deleted", "thread", req.ThreadTitle, "author", req.Username, "index", req.MessageId)
	send(&protocol.Response{Status: protocol.StatusOK})
}

func (h *Handler) handleRead(req *protocol.Request, send Responder) {
	messages, err := h.forum.ReadThread(req.ThreadTitle)
	if err != nil {
		send(&protocol.Response{Status: errors.StatusOf(err)})
		return
	}
	if len(messages) == 0 {
		send(&protocol.Response{Status: protocol.StatusEmpty})
		return
	}
	lines := make([]string, len(messages))
	for i, msg := range messages {
		lines[i] = msg.Line()
	}
	send(&protocol.Response{Status: protocol.StatusOK, Messages: lines})
}

func (h *Handler) handleEdit(req *protocol.Request, send Responder) {
	if err := h.forum.EditMessage(req.ThreadTitle, req.Username, req.MessageId, req.Message); err != nil {
		send(&protocol.Response{Status: errors.StatusOf(err)})
		return
	}
	logger.Log.Info("message edited", "thread", req.ThreadTitle, "author", req.Username, "index", req.MessageId)
	send(&protocol.Response{Status: protocol.StatusOK})
}

func (h *Handler) handleRemove(req *protocol.Request, send Responder) {
	if err := h.forum.RemoveThread(req.ThreadTitle, req.Username); err != nil {
		send(&protocol.Response{Status: errors.StatusOf(err)})
		return
	}
	logger.Log.Info("thread removed", "thread", req.ThreadTitle, "owner", req.Username)
	send(&protocol.Response{Status: protocol.StatusOK})
}
