package http

import "github.com/labstack/echo/v4"

// Envelope is the body of every API response. Successful calls fill Data;
// failures fill Error and TraceID so a report can be matched to the log line.
type Envelope struct {
	Data    interface{} `json:"data,omitempty"`
	Error   *Problem    `json:"error,omitempty"`
	TraceID string      `json:"trace_id,omitempty"`
}

// Problem carries a machine readable code and the message shown to the user.
type Problem struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func JSON(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, Envelope{Data: data})
}

// ErrorJSON writes a failure envelope stamped with the request's trace id.
func ErrorJSON(c echo.Context, status int, code, message string) error {
	return c.JSON(status, Envelope{Error: &Problem{Code: code, Message: message}, TraceID: RequestID(c)})
}

// RequestID returns the id set by the request id middleware, falling back to
// the incoming header.
func RequestID(c echo.Context) string {
	if reqID := c.Response().Header().Get(echo.HeaderXRequestID); reqID != "" {
		return reqID
	}
	return c.Request().Header.Get(echo.HeaderXRequestID)
}
