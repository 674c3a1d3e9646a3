package dto

// Response is the envelope every endpoint answers with. Exactly one of
// Data and Error is set.
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
	Meta    *Meta      `json:"meta,omitempty"`
}

// ErrorInfo is the error half of the envelope. Kind is the domain error
// kind; Details and Fields carry per-field problems from the domain and
// from request binding respectively.
type ErrorInfo struct {
	Code      string             `json:"code"`
	Message   string             `json:"message"`
	Kind      string             `json:"kind,omitempty"`
	RequestID string             `json:"request_id,omitempty"`
	Details   map[string]string  `json:"details,omitempty"`
	Fields    []ValidationDetail `json:"fields,omitempty"`
}

type ValidationDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Meta describes a list. Limit is zero when the list was not truncated.
type Meta struct {
	Total int `json:"total"`
	Limit int `json:"limit,omitempty"`
}

func OK(data any) Response {
	return Response{Success: true, Data: data}
}

func Page(data any, total, limit int) Response {
	return Response{Success: true, Data: data, Meta: &Meta{Total: total, Limit: limit}}
}

// Failure wraps info in an unsuccessful envelope.
func Failure(info *ErrorInfo) Response {
	return Response{Error: info}
}

// Fail builds an error envelope. requestID may be empty.
func Fail(code, message, requestID string) Response {
	return Failure(&ErrorInfo{Code: code, Message: message, RequestID: requestID})
}

// Invalid reports request binding failures field by field.
func Invalid(requestID string, fields []ValidationDetail) Response {
	return Failure(&ErrorInfo{
		Code:      ErrCodeRequestValidation,
		Message:   "Request validation failed",
		RequestID: requestID,
		Fields:    fields,
	})
}
