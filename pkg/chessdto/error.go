package chessdto

const (
	CodeInvalidPosition   = "invalid_position"
	CodeIllegalMove       = "illegal_move"
	CodeEngineUnavailable = "engine_unavailable"
	CodeAnalysisFailed    = "analysis_failed"
	CodeUnknownCommand    = "unknown_command"
	CodeInvalidArguments  = "invalid_arguments"
	CodeInternal          = "internal"
)

type DomainError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "chess service error"
}
