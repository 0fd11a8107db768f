package tools

// Result is the uniform tool output returned to the model. Business
// failures are carried in Error so the model can correct its arguments or
// apologize; a Go error from a tool handler is reserved for context
// cancellation.
type Result struct {
	Status string     `json:"status"`
	Data   any        `json:"data,omitempty"`
	Error  *ToolError `json:"error,omitempty"`
}

// Result status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ToolError is a structured error for model consumption.
type ToolError struct {
	ErrorType string `json:"error_type"` // e.g. "InvalidArguments", "RetrievalFailed"
	Message   string `json:"message"`
}

// Error type values used by the product assistant tools.
const (
	ErrTypeInvalidArguments = "InvalidArguments"
	ErrTypeRetrievalFailed  = "RetrievalFailed"
	ErrTypeCalculationError = "CalculationError"
	ErrTypeUnknownProduct   = "UnknownProduct"
)

// Error implements the error interface.
func (e *ToolError) Error() string {
	if e == nil {
		return "<nil ToolError>"
	}
	switch {
	case e.ErrorType == "":
		return e.Message
	case e.Message == "":
		return e.ErrorType
	}
	return e.ErrorType + ": " + e.Message
}

// errResult wraps a ToolError into a Result.
func errResult(errType, message string) Result {
	return Result{
		Status: StatusError,
		Error:  &ToolError{ErrorType: errType, Message: message},
	}
}
