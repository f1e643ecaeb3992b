package handler

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pesio-ai/be-ojt-placements/internal/errors"
	"github.com/pesio-ai/be-ojt-placements/internal/middleware"
)

// retryAfterSeconds is advertised on CONFLICT responses. Lock waits are
// short, so an immediate retry usually succeeds.
const retryAfterSeconds = 1

func httpStatus(code errors.Code) int {
	switch code {
	case errors.ErrCodeCapacityExceeded, errors.ErrCodeInvalidState, errors.ErrCodeDuplicateApplication:
		return http.StatusConflict
	case errors.ErrCodeConflict:
		return http.StatusServiceUnavailable
	case errors.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case errors.ErrCodePermissionDenied:
		return http.StatusForbidden
	case errors.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeStorage, errors.ErrCodeNotify:
		return http.StatusBadGateway
	case errors.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func grpcCode(code errors.Code) codes.Code {
	switch code {
	case errors.ErrCodeCapacityExceeded, errors.ErrCodeInvalidState:
		return codes.FailedPrecondition
	case errors.ErrCodeDuplicateApplication:
		return codes.AlreadyExists
	case errors.ErrCodeConflict:
		return codes.Unavailable
	case errors.ErrCodeInvalidInput:
		return codes.InvalidArgument
	case errors.ErrCodePermissionDenied:
		return codes.PermissionDenied
	case errors.ErrCodeUnauthorized:
		return codes.Unauthenticated
	case errors.ErrCodeNotFound:
		return codes.NotFound
	case errors.ErrCodeStorage, errors.ErrCodeNotify:
		return codes.Unavailable
	case errors.ErrCodeRateLimited:
		return codes.ResourceExhausted
	default:
		return codes.Internal
	}
}

// mapErrorToGRPC converts service errors to gRPC status errors.
func mapErrorToGRPC(err error) error {
	if err == nil {
		return nil
	}
	e, ok := errors.As(err)
	if !ok {
		return status.Error(codes.Internal, "internal error")
	}
	msg := e.Message
	if e.Code == errors.ErrCodeInternal {
		msg = "internal error"
	}
	return status.Errorf(grpcCode(e.Code), "%s: %s", e.Code, msg)
}

// writeServiceError renders err as the JSON error envelope. Internal
// causes are never echoed to the client.
func (h *HTTPHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := errors.As(err)
	if !ok {
		e = errors.Wrap(err, errors.ErrCodeInternal, "internal server error")
	}
	st := httpStatus(e.Code)
	if st >= http.StatusInternalServerError && e.Code != errors.ErrCodeConflict {
		h.log.Error().Err(err).
			Str("request_id", middleware.RequestIDFrom(r.Context())).
			Str("path", r.URL.Path).
			Msg("Request failed")
	}
	if e.Code == errors.ErrCodeConflict {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	}

	detail := middleware.ErrorDetail{Code: e.Code, Message: e.Message, Field: e.Field, Details: e.Details}
	if e.Code == errors.ErrCodeInternal {
		detail.Message = "internal server error"
		detail.Details = nil
	}
	middleware.WriteErrorBody(w, st, middleware.ErrorBody{Error: detail})
}

// validationError converts the first validator failure into an
// INVALID_INPUT error naming the JSON field.
func validationError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid request")
	}
	fe := verrs[0]
	var msg string
	switch fe.Tag() {
	case "required":
		msg = fe.Field() + " is required"
	case "email":
		msg = fe.Field() + " must be an email address"
	case "min":
		msg = fe.Field() + " must be at least " + fe.Param()
	case "max":
		msg = fe.Field() + " must be at most " + fe.Param()
	case "oneof":
		msg = fe.Field() + " must be one of: " + fe.Param()
	case "datetime":
		msg = fe.Field() + " must be a date in " + fe.Param() + " format"
	default:
		msg = fe.Field() + " is invalid"
	}
	return errors.InvalidInput(fe.Field(), msg)
}
