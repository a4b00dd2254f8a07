package therapist

import "errors"

var (
	ErrBadRequest = errors.New("bad request")
	ErrNotFound   = errors.New("not found")
	// ErrMalformed reports a write that went through on a document whose
	// stored working hours cannot be parsed.
	ErrMalformed = errors.New("stored therapist is malformed")
)

func IsErrBadRequest(err error) bool { return errors.Is(err, ErrBadRequest) }
func IsErrNotFound(err error) bool   { return errors.Is(err, ErrNotFound) }
func IsErrMalformed(err error) bool  { return errors.Is(err, ErrMalformed) }
