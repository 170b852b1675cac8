package protocol

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/marmos91/fsbridge/internal/logger"
	"github.com/marmos91/fsbridge/pkg/fserr"
	"github.com/marmos91/fsbridge/pkg/metrics"
	"github.com/marmos91/fsbridge/pkg/search"
	"github.com/marmos91/fsbridge/pkg/upload"
	"github.com/marmos91/fsbridge/pkg/worker"
)

// Reply codes.
const (
	ReplyError          = "ERROR"
	ReplyUploadReady    = "UPLOAD_READY"
	ReplyUploadProgress = "UPLOAD_PROGRESS"
	ReplyUploadComplete = "UPLOAD_COMPLETE"
	ReplyUploadError    = "UPLOAD_ERROR"
	ReplyUploadAborted  = "UPLOAD_ABORTED"
	ReplyCacheHit       = "UPLOAD_CACHE_HIT"
	ReplyDownloadStart  = "DOWNLOAD_START"
	ReplyDownloadEnd    = "DOWNLOAD_END"
	ReplyDownloadError  = "DOWNLOAD_ERROR"
)

// Channel is the peer side of a reliable, ordered, message-framed duplex
// channel.
type Channel interface {
	SendText(text string) error
	Send(data []byte) error

	// BufferedAmount is the number of bytes queued but not yet sent.
	BufferedAmount() uint64
}

// Join builds a text frame from a reply code and its fields.
func Join(code string, fields ...string) string {
	if len(fields) == 0 {
		return code
	}
	return code + Separator + strings.Join(fields, Separator)
}

// Handler dispatches the frames of one peer to its engine and writes the
// replies back to the peer's channel.
//
// Frames must be handed over in arrival order from a single goroutine;
// Handler does not reorder or queue.
type Handler struct {
	engine   *worker.Engine
	channel  Channel
	transfer TransferConfig
	metrics  metrics.WorkerMetrics
	log      logger.Entry
}

// NewHandler creates a Handler. A nil m selects no-op metrics.
func NewHandler(engine *worker.Engine, channel Channel, transfer TransferConfig, m metrics.WorkerMetrics, log logger.Entry) *Handler {
	transfer.ApplyDefaults()
	if m == nil {
		m = metrics.NewNoopWorkerMetrics()
	}
	return &Handler{engine: engine, channel: channel, transfer: transfer, metrics: m, log: log}
}

// HandleText processes one text frame.
func (h *Handler) HandleText(ctx context.Context, frame string) {
	start := time.Now()

	req, err := Decode(frame)
	if err != nil {
		op := OpOf(frame)
		h.log.With(logger.Fields{"op": op}).Warn("Rejected frame: %v", err)
		h.reply(Join(ReplyError, string(fserr.CodeOf(err)), fserr.MessageOf(err)))
		h.metrics.RecordRequest(op, time.Since(start), string(fserr.CodeOf(err)))
		return
	}

	err = h.dispatch(ctx, req)
	code := fserr.CodeOf(err)
	if err != nil {
		h.log.With(logger.Fields{"op": req.Op(), "code": code}).Debug("Request failed: %v", err)
	}
	h.metrics.RecordRequest(req.Op(), time.Since(start), string(code))
}

// HandleBinary processes one binary frame as an upload chunk.
func (h *Handler) HandleBinary(ctx context.Context, chunk []byte) {
	start := time.Now()

	err := h.engine.WriteChunk(chunk, func(p upload.Progress) {
		h.reply(Join(ReplyUploadProgress, itoa(p.Received), itoa(p.Total)))
	})
	if err != nil {
		h.reply(Join(ReplyUploadError, fserr.MessageOf(err)))
	}
	h.metrics.RecordRequest(OpUploadChunk, time.Since(start), string(fserr.CodeOf(err)))
}

// dispatch runs req and sends its reply. The returned error only feeds
// logs and metrics; the peer has already been answered.
func (h *Handler) dispatch(ctx context.Context, req Request) error {
	switch r := req.(type) {
	case GetMounts:
		h.replyJSON(h.engine.Mounts())
		return nil

	case ListDir:
		page, err := h.engine.ListDirectory(r.Path, r.Offset)
		if err != nil {
			h.reply(Join(ReplyError, string(fserr.CodeOf(err)), fserr.MessageOf(err)))
			return err
		}
		h.replyJSON(page)
		return nil

	case Resolve:
		res, err := h.engine.Resolve(ctx, search.Query{
			Pattern:      r.Pattern,
			ExpectedSize: r.ExpectedSize,
			MaxDepth:     r.MaxDepth,
			MountLabel:   r.MountLabel,
		})
		if err != nil {
			h.replyJSON(resolveError{
				Result:    search.Result{Candidates: []search.Candidate{}},
				Error:     fserr.MessageOf(err),
				ErrorCode: string(fserr.CodeOf(err)),
			})
			return err
		}
		h.replyJSON(res)
		return nil

	case PrefixResolve:
		h.replyJSON(h.engine.ResolvePrefix(r.Original, r.Chosen, r.Others))
		return nil

	case UploadStart:
		if _, err := h.engine.StartUpload(r.Filename, r.TotalBytes, r.DestDir, r.CreateSubdir); err != nil {
			h.reply(Join(ReplyUploadError, fserr.MessageOf(err)))
			return err
		}
		h.reply(ReplyUploadReady)
		return nil

	case UploadFinish:
		done, err := h.engine.FinishUpload(ctx)
		if err != nil {
			h.reply(Join(ReplyUploadError, fserr.MessageOf(err)))
			return err
		}
		h.reply(Join(ReplyUploadComplete, done.Path))
		return nil

	case UploadAbort:
		h.engine.AbortUpload()
		h.reply(ReplyUploadAborted)
		return nil

	case UploadCheck:
		path, hit, err := h.engine.CheckCache(ctx, r.Digest, r.Filename)
		if err != nil {
			// A failed lookup is a miss to the peer; it uploads normally.
			h.log.Warn("Cache check failed: %v", err)
			return err
		}
		if hit {
			h.reply(Join(ReplyCacheHit, path))
		}
		return nil

	case CheckRefs:
		report, err := h.engine.CheckReferences(r.Path)
		if err != nil {
			h.replyJSON(errorBody{Error: fserr.MessageOf(err), ErrorCode: string(fserr.CodeOf(err))})
			return err
		}
		h.replyJSON(report)
		return nil

	case Rewrite:
		res, err := h.engine.RewriteReferences(r.Path, r.OutputDir, r.PathMap)
		if err != nil {
			h.replyJSON(errorBody{Error: fserr.MessageOf(err), ErrorCode: string(fserr.CodeOf(err))})
			return err
		}
		h.replyJSON(res)
		return nil

	case Download:
		return h.download(ctx, r.Path)
	}

	return fserr.New(fserr.Internal, "unhandled request %T", req)
}

// errorBody is the JSON error reply of label operations.
type errorBody struct {
	Error     string `json:"error"`
	ErrorCode string `json:"error_code"`
}

// resolveError keeps the result shape so peers always find a candidate
// list.
type resolveError struct {
	search.Result
	Error     string `json:"error"`
	ErrorCode string `json:"error_code"`
}

func (h *Handler) reply(text string) {
	if err := h.channel.SendText(text); err != nil {
		h.log.Warn("Failed to send reply: %v", err)
	}
}

func (h *Handler) replyJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.log.Error("Failed to encode reply: %v", err)
		h.reply(Join(ReplyError, string(fserr.Internal), err.Error()))
		return
	}
	h.reply(string(data))
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
