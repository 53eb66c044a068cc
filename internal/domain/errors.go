package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrSourceCorrupt     = errors.New("source corrupt")
	ErrRecordInvalid     = errors.New("record invalid")
	ErrSendFailed        = errors.New("connection send failed")
	ErrConnClosed        = errors.New("connection closed")
	ErrSendBufferFull    = errors.New("connection send buffer full")
	ErrTransient         = errors.New("transient detector failure")
)

// RecordInvalidError reports a record dropped after normalization together
// with the fields that could not be resolved.
type RecordInvalidError struct {
	Variant SourceVariant
	Index   int
	Missing []string
}

func (e *RecordInvalidError) Error() string {
	return fmt.Sprintf("record %d (%s): missing required fields: %s",
		e.Index, e.Variant, strings.Join(e.Missing, ", "))
}

func (e *RecordInvalidError) Unwrap() error { return ErrRecordInvalid }
