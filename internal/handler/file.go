package handler

import (
	"fmt"

	"github.com/forumd-dev/forumd/internal/errors"
	"github.com/forumd-dev/forumd/internal/logger"
	"github.com/forumd-dev/forumd/internal/protocol"
)

// handleUpload drives the upload handshake: validate, claim the transfer
// slot, answer UPLOAD (ready for data), receive the stream, verify the byte
// count and only then register the attachment. The slot is claimed before
// UPLOAD goes out so the connection this client opens is the one this
// transfer accepts. A partial upload is discarded and never becomes visible.
func (h *Handler) handleUpload(req *protocol.Request, send Responder) {
	if !h.forum.HasThread(req.ThreadTitle) {
		send(&protocol.Response{Status: protocol.StatusNoThread})
		return
	}
	if req.FileName == "" || req.FileSize < 0 {
		send(&protocol.Response{Status: protocol.StatusMalformed})
		return
	}

	sess := h.transfers.Begin()
	defer sess.Close()

	send(&protocol.Response{Status: protocol.StatusUpload})

	data, err := sess.Receive(req.FileSize)
	if err != nil {
		logger.Log.Warn("upload failed", "thread", req.ThreadTitle, "file", req.FileName, "error", err)
		send(&protocol.Response{Status: errors.StatusOf(err)})
		return
	}

	if err := h.forum.PutAttachment(req.ThreadTitle, req.FileName, data); err != nil {
		// Thread removed while the bytes were in flight.
		send(&protocol.Response{Status: errors.StatusOf(err)})
		return
	}
	// The upload notice is an ordinary message so RDT shows who uploaded what.
	if _, err := h.forum.PostMessage(req.ThreadTitle, req.Username, fmt.Sprintf("uploaded %s", req.FileName)); err != nil {
		logger.Log.Warn("failed to post upload notice", "thread", req.ThreadTitle, "file", req.FileName, "error", err)
	}
	logger.Log.Info("file uploaded", "thread", req.ThreadTitle, "file", req.FileName, "size", len(data))
	send(&protocol.Response{Status: protocol.StatusOK})
}

// handleDownload answers FILE_FOUND with the authoritative size, then writes
// the bytes on the stream endpoint. The transfer slot is claimed before
// FILE_FOUND goes out, for the same reason as in handleUpload. The client
// verifies the count and reports the outcome with RPT.
func (h *Handler) handleDownload(req *protocol.Request, send Responder) {
	att, err := h.forum.Attachment(req.ThreadTitle, req.FileName)
	if err != nil {
		send(&protocol.Response{Status: errors.StatusOf(err)})
		return
	}

	sess := h.transfers.Begin()
	defer sess.Close()

	send(&protocol.Response{Status: protocol.StatusFileFound, FileSize: att.Size})

	if err := sess.Send(att.Data); err != nil {
		logger.Log.Warn("download failed", "thread", req.ThreadTitle, "file", req.FileName, "error", err)
		return
	}
	logger.Log.Info("file downloaded", "thread", req.ThreadTitle, "file", req.FileName, "size", att.Size, "user", req.Username)
}

// handleReport records the client's verdict on a completed download for the
// audit trail.
func (h *Handler) handleReport(req *protocol.Request, send Responder) {
	if req.Report == protocol.StatusOK {
		logger.Log.Info("download confirmed", "thread", req.ThreadTitle, "file", req.FileName, "user", req.Username)
	} else {
		logger.Log.Warn("download reported corrupted", "thread", req.ThreadTitle, "file", req.FileName, "user", req.Username)
	}
	send(&protocol.Response{Status: protocol.StatusOK})
}
