package httperr

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// NewHTTPErrorHandler returns an echo error handler that renders every
// failure as the standard envelope. Domain errors pass through with their
// code and status; echo HTTP errors are mapped onto the taxonomy; anything
// else becomes an opaque internal error whose detail is only logged, keyed
// by the request id for log cross-referencing.
func NewHTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		rid, _ := c.Get("request_id").(string)
		path := c.Request().URL.Path

		appErr, ok := As(err)
		if !ok {
			if he, isHTTP := err.(*echo.HTTPError); isHTTP {
				appErr = fromEchoError(he)
			} else {
				logger.Error().
					Err(err).
					Str("request_id", rid).
					Str("path", path).
					Msg("unhandled error")
				appErr = Internal(err)
			}
		}

		if appErr.Code == CodeInternal && appErr.Unwrap() != nil {
			logger.Error().
				Err(appErr.Unwrap()).
				Str("request_id", rid).
				Str("path", path).
				Msg("internal error")
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(appErr.Status)
			return
		}
		_ = c.JSON(appErr.Status, NewEnvelope(appErr, rid, path))
	}
}

// fromEchoError maps echo's own HTTP errors (bind failures, 404s from the
// router, method-not-allowed) onto the taxonomy.
func fromEchoError(he *echo.HTTPError) *Error {
	msg, _ := he.Message.(string)
	switch he.Code {
	case http.StatusUnauthorized:
		return Authentication()
	case http.StatusForbidden:
		return Authorization(msg)
	case http.StatusNotFound:
		return &Error{Code: CodeResourceNotFound, Status: http.StatusNotFound, Message: nonEmpty(msg, "resource not found")}
	case http.StatusConflict:
		return Conflict(nonEmpty(msg, "resource already exists"))
	case http.StatusTooManyRequests:
		return &Error{Code: CodeRateLimitExceeded, Status: he.Code, Message: nonEmpty(msg, "rate limit exceeded")}
	case http.StatusBadRequest, http.StatusUnsupportedMediaType, http.StatusRequestEntityTooLarge:
		return &Error{Code: CodeValidation, Status: he.Code, Message: nonEmpty(msg, "invalid request")}
	default:
		return &Error{Code: CodeInternal, Status: he.Code, Message: nonEmpty(msg, "an unexpected error occurred")}
	}
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
