package http

import (
	"errors"

	"soulease/backend/internal/domain/admin"
	"soulease/backend/internal/domain/availability"
	"soulease/backend/internal/domain/booking"
	"soulease/backend/internal/domain/matching"
	"soulease/backend/internal/domain/report"
	"soulease/backend/internal/domain/therapist"
	"soulease/backend/internal/maps"
	"soulease/backend/internal/uploads"
)

func mapTherapistError(err error) (int, string) {
	if err == nil {
		return 500, "unknown error"
	}
	switch {
	case therapist.IsErrNotFound(err):
		return 404, err.Error()
	case therapist.IsErrMalformed(err):
		return 409, err.Error()
	case therapist.IsErrBadRequest(err), availability.IsErrInvalidInput(err):
		return 400, err.Error()
	default:
		return 500, err.Error()
	}
}

func mapBookingError(err error) (int, string) {
	if err == nil {
		return 500, "unknown error"
	}
	switch {
	case booking.IsErrForbidden(err):
		return 403, err.Error()
	case booking.IsErrNotFound(err):
		return 404, err.Error()
	case booking.IsErrConflict(err), booking.IsErrUnavailable(err):
		return 409, err.Error()
	case booking.IsErrBadRequest(err), availability.IsErrInvalidInput(err):
		return 400, err.Error()
	default:
		return 500, err.Error()
	}
}

func mapAdminError(err error) (int, string) {
	if err == nil {
		return 500, "unknown error"
	}
	switch {
	case admin.IsErrForbidden(err):
		return 403, err.Error()
	case admin.IsErrNotFound(err):
		return 404, err.Error()
	case admin.IsErrBadRequest(err):
		return 400, err.Error()
	default:
		return 500, err.Error()
	}
}

func mapQueryError(err error) (int, string) {
	if err == nil {
		return 500, "unknown error"
	}
	switch {
	case matching.IsErrBadRequest(err), report.IsErrBadRequest(err), uploads.IsErrBadRequest(err):
		return 400, err.Error()
	case errors.Is(err, maps.ErrNoResults):
		return 404, err.Error()
	case uploads.IsErrNotConfigured(err):
		return 503, err.Error()
	default:
		return 500, err.Error()
	}
}
