package types

// Error codes returned by the gateway API.
const (
	CodeBadRequest      = "REQUEST_400"
	CodeUnauthenticated = "AUTH_401"
	CodeNotFound        = "VIEW_404"
	CodeConflict        = "COMMAND_409"
	CodeBackend         = "BACKEND_502"
	CodeUnavailable     = "BACKEND_503"
	CodeBrokerOffline   = "BROKER_503"
	CodeInternal        = "INTERNAL_500"
)

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// NewErrorResponse builds an API error payload. details may be nil.
func NewErrorResponse(code, message string, details any) ErrorResponse {
	return ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}
