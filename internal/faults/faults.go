package faults

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindScanWarning   Kind = "SCAN_WARNING"
	KindBindingError  Kind = "BINDING_ERROR"
	KindCollision     Kind = "COLLISION"
	KindResolutionGap Kind = "RESOLUTION_GAP"
	KindValidation    Kind = "VALIDATION"
	KindInternal      Kind = "INTERNAL"
)

// Fault is the pipeline's domain error. Every fatal fault names the specific
// tool, profile or file involved via its context map.
type Fault struct {
	Kind    Kind
	Message string
	Err     error
	Context map[string]any
}

const (
	CtxProfile = "profile"
	CtxTool    = "tool"
	CtxFile    = "file"
	CtxParam   = "param"
	CtxType    = "type"
)

func (f *Fault) Error() string {
	msg := fmt.Sprintf("[%s] %s", f.Kind, f.Message)
	if f.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, f.Err)
	}
	if len(f.Context) > 0 {
		msg += fmt.Sprintf(" %v", f.Context)
	}
	return msg
}

func (f *Fault) Unwrap() error {
	return f.Err
}

func (f *Fault) With(key string, value any) *Fault {
	if f.Context == nil {
		f.Context = make(map[string]any)
	}
	f.Context[key] = value
	return f
}

func New(kind Kind, msg string) *Fault {
	return &Fault{Kind: kind, Message: msg}
}

func Newf(kind Kind, format string, args ...any) *Fault {
	return &Fault{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...any) *Fault {
	return &Fault{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func IsKind(err error, kind Kind) bool {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind == kind
	}
	return false
}
