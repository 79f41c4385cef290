package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrMalformedHeader  = errors.New("malformed header")
	ErrTokenize         = errors.New("unrecognized character sequence")
	ErrOverlappingSpans = errors.New("overlapping link spans")
	ErrInspectDisabled  = errors.New("inspection store disabled")
)

// DocumentError ties a pipeline fault to the document it was raised for.
type DocumentError struct {
	Path string
	Err  error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *DocumentError) Unwrap() error {
	return e.Err
}

// ForDocument wraps err with the document path. A nil err stays nil.
func ForDocument(path string, err error) error {
	if err == nil {
		return nil
	}
	var de *DocumentError
	if errors.As(err, &de) && de.Path == path {
		return err
	}
	return &DocumentError{Path: path, Err: err}
}
