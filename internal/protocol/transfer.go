package protocol

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"time"

	"github.com/marmos91/fsbridge/pkg/fserr"
)

const (
	DefaultChunkSize     = 64 * 1024
	DefaultHighWaterMark = 16 * 1024 * 1024
	DefaultPollInterval  = 10 * time.Millisecond
)

// TransferConfig tunes outbound file transfer.
type TransferConfig struct {
	// ChunkSize is the payload size of each binary frame.
	ChunkSize int `mapstructure:"chunk_size" validate:"gte=0"`

	// HighWaterMark pauses sending while the channel holds more unsent
	// bytes than this.
	HighWaterMark uint64 `mapstructure:"high_water_mark"`

	// PollInterval is how often a paused sender re-reads the unsent count.
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gte=0"`
}

// ApplyDefaults fills zero fields with the Default* constants.
func (c *TransferConfig) ApplyDefaults() {
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.HighWaterMark == 0 {
		c.HighWaterMark = DefaultHighWaterMark
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
}

// waitForDrain blocks while the channel's unsent bytes exceed the high-water
// mark. It has no timeout; only ctx (the peer session) ends it early.
func (h *Handler) waitForDrain(ctx context.Context) error {
	if h.channel.BufferedAmount() <= h.transfer.HighWaterMark {
		return nil
	}

	ticker := time.NewTicker(h.transfer.PollInterval)
	defer ticker.Stop()

	for h.channel.BufferedAmount() > h.transfer.HighWaterMark {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// download streams a file to the peer:
//
//	DOWNLOAD_START::name::size, binary chunks..., DOWNLOAD_END::size
//
// Failures after the start frame are reported with DOWNLOAD_ERROR and the
// peer discards what it received.
func (h *Handler) download(ctx context.Context, path string) error {
	fail := func(err error) error {
		h.reply(Join(ReplyDownloadError, string(fserr.CodeOf(err)), fserr.MessageOf(err)))
		return err
	}

	f, info, err := h.engine.OpenDownload(path)
	if err != nil {
		return fail(err)
	}
	defer f.Close()

	h.reply(Join(ReplyDownloadStart, filepath.Base(f.Name()), itoa(info.Size())))

	buf := make([]byte, h.transfer.ChunkSize)
	var sent int64
	for {
		n, readErr := f.Read(buf)
		if n > 0 {
			if err := h.waitForDrain(ctx); err != nil {
				return fail(fserr.Wrap(fserr.Internal, err, "download cancelled"))
			}
			if err := h.channel.Send(buf[:n]); err != nil {
				return fail(fserr.Wrap(fserr.Internal, err, "send failed"))
			}
			sent += int64(n)
			h.engine.RecordDownload(int64(n))
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return fail(fserr.Wrap(fserr.PermissionDenied, readErr, "read failed"))
		}
	}

	h.reply(Join(ReplyDownloadEnd, itoa(sent)))
	h.log.Debug("Download of %s complete: %d bytes", path, sent)
	return nil
}
