package etch

import "fmt"
import "golang.org/x/xerrors"

// MissingDataError reports a hash that no reachable store can resolve.
type MissingDataError struct {
	Hash Hash
}

func (e *MissingDataError) Error() string {
	return fmt.Sprintf("missing data: %s", e.Hash)
}

func (e *MissingDataError) Is(target error) bool { return target == ErrMissingData }

// StoreIOError wraps a failure of the medium under a store.
type StoreIOError struct {
	Op  string
	Err error
}

func (e *StoreIOError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreIOError) Unwrap() error        { return e.Err }
func (e *StoreIOError) Is(target error) bool { return target == ErrStoreIO }

func ioError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreIOError{Op: op, Err: err}
}

func badFormat(format string, args ...interface{}) error {
	return xerrors.Errorf("%w: "+format, append([]interface{}{ErrBadFormat}, args...)...)
}

func invalidCell(format string, args ...interface{}) error {
	return xerrors.Errorf("%w: "+format, append([]interface{}{ErrInvalidCell}, args...)...)
}

// invariant violations are not recoverable, hash identity is value identity
func invariant(format string, args ...interface{}) {
	panic(fmt.Sprintf("etch invariant violated: "+format, args...))
}

func wrapCorruption(want, got Hash) error {
	return xerrors.Errorf("%w: expected %s, content hashes to %s", ErrCorruption, want, got)
}
