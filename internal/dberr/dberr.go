// Package dberr defines the engine-wide error kinds surfaced to callers.
// Internal packages keep their own sentinel errors; dberr wraps them
// with a stable Kind so the executor and the CLI can type-switch without
// depending on package-private sentinels.
package dberr

import "fmt"

// Kind classifies an engine error for the surface. Kinds carry a message
// but never a stack; Internal indicates a broken invariant.
type Kind string

const (
	KindSyntax               Kind = "Syntax"
	KindUnknownTable         Kind = "UnknownTable"
	KindUnknownColumn        Kind = "UnknownColumn"
	KindTypeError            Kind = "TypeError"
	KindArityMismatch        Kind = "ArityMismatch"
	KindNotNullViolation     Kind = "NotNullViolation"
	KindUniqueViolation      Kind = "UniqueViolation"
	KindForeignKeyViolation  Kind = "ForeignKeyViolation"
	KindDuplicateConstraint  Kind = "DuplicateConstraint"
	KindNoSuchConstraint     Kind = "NoSuchConstraint"
	KindTxnAlreadyOpen       Kind = "TxnAlreadyOpen"
	KindTxnNotOpen           Kind = "TxnNotOpen"
	KindDdlInTxn             Kind = "DdlInTxn"
	KindCheckpointInTxn      Kind = "CheckpointInTxn"
	KindUnknownIndex         Kind = "UnknownIndex"
	KindDuplicateIndex       Kind = "DuplicateIndex"
	KindCodecError           Kind = "CodecError"
	KindWalCorrupt           Kind = "WalCorrupt"
	KindIoError              Kind = "IoError"
	KindDbLocked             Kind = "DbLocked"
	KindInternal             Kind = "Internal"
)

// Error is the engine-level error returned across package boundaries.
// It wraps an underlying package error (if any) without discarding it.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Msg == "" && e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Err.Error())
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a Kind-tagged error with a message only.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf builds a Kind-tagged error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap tags an underlying error with a Kind, keeping it unwrap-able.
func Wrap(kind Kind, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: err.Error(), Err: err}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if ok := As(err, &e); ok {
		return e.Kind == kind
	}
	return false
}

// As is a small local shim so callers don't need to import "errors" just
// for this one check; it walks the single-error Unwrap chain itself.
func As(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
