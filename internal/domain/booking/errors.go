package booking

import "errors"

var (
	ErrBadRequest  = errors.New("bad request")
	ErrForbidden   = errors.New("forbidden")
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("therapist unavailable")
)

func IsErrBadRequest(err error) bool  { return errors.Is(err, ErrBadRequest) }
func IsErrForbidden(err error) bool   { return errors.Is(err, ErrForbidden) }
func IsErrNotFound(err error) bool    { return errors.Is(err, ErrNotFound) }
func IsErrConflict(err error) bool    { return errors.Is(err, ErrConflict) }
func IsErrUnavailable(err error) bool { return errors.Is(err, ErrUnavailable) }
