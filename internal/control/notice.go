package control

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/nerrad567/homedash-core/internal/realtime"
	"github.com/nerrad567/homedash-core/internal/store"
)

// NoticeKind classifies a failure for the user.
type NoticeKind string

const (
	// NoticeAccessDenied means the store's write rules rejected the user.
	NoticeAccessDenied NoticeKind = "access_denied"
	// NoticeUnavailable means the store could not be reached; retrying
	// later may work.
	NoticeUnavailable NoticeKind = "unavailable"
	// NoticeTimeout means the write did not settle in time. It may still
	// have been applied.
	NoticeTimeout NoticeKind = "timeout"
	// NoticeError is everything else.
	NoticeError NoticeKind = "error"
)

// maxNotices bounds the notices a surface keeps; the oldest go first.
const maxNotices = 10

// Notice is a dismissible user-visible failure.
type Notice struct {
	ID      string     `json:"id"`
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
	Path    string     `json:"path,omitempty"`
}

// Classify maps a write error to a notice kind.
func Classify(err error) NoticeKind {
	switch {
	case errors.Is(err, store.ErrPermissionDenied):
		return NoticeAccessDenied
	case errors.Is(err, realtime.ErrWriteTimeout), errors.Is(err, context.DeadlineExceeded):
		return NoticeTimeout
	case errors.Is(err, store.ErrUnavailable):
		return NoticeUnavailable
	default:
		return NoticeError
	}
}

func noticeMessage(kind NoticeKind) string {
	switch kind {
	case NoticeAccessDenied:
		return "Your account is not allowed to change this device."
	case NoticeUnavailable:
		return "The device service is unreachable. Try again shortly."
	case NoticeTimeout:
		return "The device did not respond in time."
	default:
		return "The change could not be made."
	}
}

// newNotice builds a notice for a failed write to path.
func newNotice(err error, path string) Notice {
	kind := Classify(err)
	return Notice{
		ID:      uuid.NewString(),
		Kind:    kind,
		Message: noticeMessage(kind),
		Path:    path,
	}
}
