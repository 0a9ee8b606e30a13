package rest

import (
	"context"
	"errors"
	"net/http"

	"github.com/KevinKickass/aquanest/internal/apiclient"
	"github.com/KevinKickass/aquanest/internal/telemetry"
	"github.com/KevinKickass/aquanest/internal/types"
	"github.com/KevinKickass/aquanest/internal/views"
	"github.com/gin-gonic/gin"
)

// writeError maps a backend, view or command error to an API response.
func (s *Server) writeError(c *gin.Context, err error) {
	status, body := errorResponse(err)
	if s.metrics != nil {
		s.metrics.ErrorCounter(body.Error.Code)
	}
	_ = c.Error(err)
	c.JSON(status, body)
}

func errorResponse(err error) (int, types.ErrorResponse) {
	var statusErr *apiclient.StatusError

	switch {
	case errors.Is(err, apiclient.ErrUnauthenticated):
		return http.StatusUnauthorized, types.NewErrorResponse(types.CodeUnauthenticated, apiclient.Describe(err), nil)

	case errors.As(err, &statusErr):
		details := gin.H{"status": statusErr.Status, "body": statusErr.Body}
		switch statusErr.Status {
		case http.StatusNotFound:
			return http.StatusNotFound, types.NewErrorResponse(types.CodeNotFound, "not found", details)
		case http.StatusConflict:
			return http.StatusConflict, types.NewErrorResponse(types.CodeConflict, apiclient.Describe(err), details)
		case http.StatusBadRequest:
			return http.StatusBadRequest, types.NewErrorResponse(types.CodeBadRequest, apiclient.Describe(err), details)
		}
		return http.StatusBadGateway, types.NewErrorResponse(types.CodeBackend, apiclient.Describe(err), details)

	case errors.Is(err, apiclient.ErrUnreachable):
		return http.StatusServiceUnavailable, types.NewErrorResponse(types.CodeUnavailable, apiclient.Describe(err), nil)
	case errors.Is(err, apiclient.ErrInvalidPayload):
		return http.StatusBadGateway, types.NewErrorResponse(types.CodeBackend, apiclient.Describe(err), err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, types.NewErrorResponse(types.CodeUnavailable, apiclient.Describe(err), nil)

	case errors.Is(err, telemetry.ErrCommandPending):
		return http.StatusConflict, types.NewErrorResponse(types.CodeConflict, err.Error(), nil)
	case errors.Is(err, telemetry.ErrNotConnected):
		return http.StatusServiceUnavailable, types.NewErrorResponse(types.CodeBrokerOffline, err.Error(), nil)
	case errors.Is(err, telemetry.ErrUnknownActuator),
		errors.Is(err, telemetry.ErrClosed),
		errors.Is(err, views.ErrViewNotFound):
		return http.StatusNotFound, types.NewErrorResponse(types.CodeNotFound, err.Error(), nil)
	case errors.Is(err, views.ErrTooManyViews):
		return http.StatusTooManyRequests, types.NewErrorResponse(types.CodeUnavailable, err.Error(), nil)
	}

	return http.StatusInternalServerError, types.NewErrorResponse(types.CodeInternal, "internal error", err.Error())
}

func badRequest(c *gin.Context, msg string, details any) {
	c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodeBadRequest, msg, details))
}
