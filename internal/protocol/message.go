// Package protocol implements the text message protocol spoken over a
// peer channel.
//
// Text frames are operation codes followed by fields joined with Separator.
// Decode turns a frame into one of the typed Request values and fails
// closed: an unknown operation is an UNKNOWN_OPERATION error, bad fields an
// INVALID_ARGUMENT error. Binary frames are upload chunks.
package protocol

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/marmos91/fsbridge/pkg/fserr"
)

// Separator joins the fields of a text frame.
const Separator = "::"

// Operation codes.
const (
	OpGetMounts     = "GET_MOUNTS"
	OpListDir       = "LIST_DIR"
	OpResolve       = "RESOLVE"
	OpPrefixResolve = "PREFIX_RESOLVE"
	OpUploadStart   = "UPLOAD_START"
	OpUploadFinish  = "UPLOAD_FINISH"
	OpUploadAbort   = "UPLOAD_ABORT"
	OpUploadCheck   = "UPLOAD_CHECK"
	OpCheckRefs     = "CHECK_REFS"
	OpRewrite       = "REWRITE"
	OpDownload      = "DOWNLOAD"

	// OpUploadChunk names binary frames in logs and metrics.
	OpUploadChunk = "UPLOAD_CHUNK"
)

// Request is a decoded text frame.
type Request interface {
	Op() string
}

type GetMounts struct{}

type ListDir struct {
	Path   string
	Offset int
}

type Resolve struct {
	Pattern      string
	ExpectedSize *int64
	MaxDepth     int
	MountLabel   string
}

type PrefixResolve struct {
	Original string
	Chosen   string
	Others   []string
}

type UploadStart struct {
	Filename     string
	TotalBytes   int64
	DestDir      string
	CreateSubdir bool
}

type UploadFinish struct{}

type UploadAbort struct{}

type UploadCheck struct {
	Digest   string
	Filename string
}

type CheckRefs struct {
	Path string
}

type Rewrite struct {
	Path      string
	OutputDir string
	PathMap   map[string]string
}

type Download struct {
	Path string
}

func (GetMounts) Op() string     { return OpGetMounts }
func (ListDir) Op() string       { return OpListDir }
func (Resolve) Op() string       { return OpResolve }
func (PrefixResolve) Op() string { return OpPrefixResolve }
func (UploadStart) Op() string   { return OpUploadStart }
func (UploadFinish) Op() string  { return OpUploadFinish }
func (UploadAbort) Op() string   { return OpUploadAbort }
func (UploadCheck) Op() string   { return OpUploadCheck }
func (CheckRefs) Op() string     { return OpCheckRefs }
func (Rewrite) Op() string       { return OpRewrite }
func (Download) Op() string      { return OpDownload }

// OpOf returns the operation code of a raw frame, for logging frames that
// fail to decode.
func OpOf(frame string) string {
	op, _, _ := strings.Cut(frame, Separator)
	return op
}

// fields splits rest into at most n fields; the last keeps any embedded
// separators. Missing trailing fields are returned empty.
func fields(rest string, n int) []string {
	out := make([]string, n)
	if rest == "" {
		return out
	}
	copy(out, strings.SplitN(rest, Separator, n))
	return out
}

func invalid(op, format string, args ...any) error {
	return fserr.New(fserr.InvalidArgument, op+": "+format, args...)
}

func required(op, name, value string) error {
	if value == "" {
		return invalid(op, "%s is required", name)
	}
	return nil
}

// Decode parses a text frame into a Request.
func Decode(frame string) (Request, error) {
	op, rest, _ := strings.Cut(frame, Separator)

	switch op {
	case OpGetMounts:
		return GetMounts{}, nil

	case OpListDir:
		f := fields(rest, 2)
		if err := required(op, "path", f[0]); err != nil {
			return nil, err
		}
		req := ListDir{Path: f[0]}
		if f[1] != "" {
			offset, err := strconv.Atoi(f[1])
			if err != nil || offset < 0 {
				return nil, invalid(op, "invalid offset %q", f[1])
			}
			req.Offset = offset
		}
		return req, nil

	case OpResolve:
		f := fields(rest, 4)
		if err := required(op, "pattern", f[0]); err != nil {
			return nil, err
		}
		req := Resolve{Pattern: f[0], MountLabel: f[3]}
		if f[1] != "" {
			size, err := strconv.ParseInt(f[1], 10, 64)
			if err != nil || size < 0 {
				return nil, invalid(op, "invalid expected size %q", f[1])
			}
			req.ExpectedSize = &size
		}
		if f[2] != "" {
			depth, err := strconv.Atoi(f[2])
			if err != nil || depth < 1 {
				return nil, invalid(op, "invalid max depth %q", f[2])
			}
			req.MaxDepth = depth
		}
		return req, nil

	case OpPrefixResolve:
		f := fields(rest, 3)
		if err := required(op, "original path", f[0]); err != nil {
			return nil, err
		}
		if err := required(op, "chosen path", f[1]); err != nil {
			return nil, err
		}
		req := PrefixResolve{Original: f[0], Chosen: f[1]}
		if f[2] != "" {
			if err := json.Unmarshal([]byte(f[2]), &req.Others); err != nil {
				return nil, invalid(op, "invalid path list: %v", err)
			}
		}
		return req, nil

	case OpUploadStart:
		f := fields(rest, 4)
		if err := required(op, "filename", f[0]); err != nil {
			return nil, err
		}
		total, err := strconv.ParseInt(f[1], 10, 64)
		if err != nil || total < 0 {
			return nil, invalid(op, "invalid size %q", f[1])
		}
		if err := required(op, "destination", f[2]); err != nil {
			return nil, err
		}
		req := UploadStart{Filename: f[0], TotalBytes: total, DestDir: f[2]}
		if f[3] != "" {
			if req.CreateSubdir, err = strconv.ParseBool(f[3]); err != nil {
				return nil, invalid(op, "invalid create_subdir %q", f[3])
			}
		}
		return req, nil

	case OpUploadFinish:
		return UploadFinish{}, nil

	case OpUploadAbort:
		return UploadAbort{}, nil

	case OpUploadCheck:
		f := fields(rest, 2)
		if err := required(op, "digest", f[0]); err != nil {
			return nil, err
		}
		return UploadCheck{Digest: f[0], Filename: f[1]}, nil

	case OpCheckRefs:
		if err := required(op, "path", rest); err != nil {
			return nil, err
		}
		return CheckRefs{Path: rest}, nil

	case OpRewrite:
		f := fields(rest, 3)
		if err := required(op, "path", f[0]); err != nil {
			return nil, err
		}
		if err := required(op, "output directory", f[1]); err != nil {
			return nil, err
		}
		req := Rewrite{Path: f[0], OutputDir: f[1], PathMap: map[string]string{}}
		if f[2] != "" {
			if err := json.Unmarshal([]byte(f[2]), &req.PathMap); err != nil {
				return nil, invalid(op, "invalid path map: %v", err)
			}
		}
		return req, nil

	case OpDownload:
		if err := required(op, "path", rest); err != nil {
			return nil, err
		}
		return Download{Path: rest}, nil
	}

	return nil, fserr.New(fserr.UnknownOperation, "unknown operation %q", op)
}
