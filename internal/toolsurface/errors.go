package toolsurface

import (
	"errors"
	"fmt"

	"github.com/aio-dev/aio/internal/store"
)

// Kind is the error vocabulary agents see back from a tool call, per the
// ToolSurface error contract.
type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindInvalidArgument    Kind = "invalid_argument"
	KindConflict           Kind = "conflict"
	KindPreconditionFailed Kind = "precondition_failed"
	KindBlocked            Kind = "blocked"
	KindStorageError       Kind = "storage_error"
)

// ToolError is a structured error a ToolSurface operation returns. Agents
// translate Kind + Message into their own narrative; nothing here is meant
// to be shown to a human verbatim.
type ToolError struct {
	Kind    Kind
	Message string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func invalidArgument(format string, args ...any) error {
	return &ToolError{Kind: KindInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

func preconditionFailed(format string, args ...any) error {
	return &ToolError{Kind: KindPreconditionFailed, Message: fmt.Sprintf(format, args...)}
}

func blocked(reason string) error {
	return &ToolError{Kind: KindBlocked, Message: reason}
}

// wrapStoreErr translates a store-layer sentinel error into the ToolSurface
// error vocabulary. Any error not recognized as one of the store's sentinels
// is treated as a storage_error, since it originates below the line this
// package is responsible for narrating.
func wrapStoreErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return &ToolError{Kind: KindNotFound, Message: err.Error()}
	case errors.Is(err, store.ErrConflict):
		return &ToolError{Kind: KindConflict, Message: err.Error()}
	case errors.Is(err, store.ErrInvalidArgument):
		return &ToolError{Kind: KindInvalidArgument, Message: err.Error()}
	case errors.Is(err, store.ErrPreconditionFailed):
		return &ToolError{Kind: KindPreconditionFailed, Message: err.Error()}
	default:
		return &ToolError{Kind: KindStorageError, Message: err.Error()}
	}
}
