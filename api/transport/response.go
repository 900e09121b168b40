package transport

import "encoding/json"

// Envelope wraps every gateway response, success or failure.
type Envelope struct {
	Status string `json:"status"`
	Code   string `json:"code,omitempty"`
	Data   any    `json:"data,omitempty"`
	Error  any    `json:"error,omitempty"`
	Meta   any    `json:"meta,omitempty"`
}

// ErrorBody is the user-facing part of a failure.
type ErrorBody struct {
	Message string `json:"message"`
}

// NewSuccess returns a success envelope.
func NewSuccess(data any, meta any) Envelope {
	return Envelope{
		Status: "success",
		Data:   data,
		Meta:   meta,
	}
}

// NewError returns an error envelope carrying a user-facing message.
func NewError(code string, message string, meta any) Envelope {
	return Envelope{
		Status: "error",
		Code:   code,
		Error:  ErrorBody{Message: message},
		Meta:   meta,
	}
}

// Bytes encodes the envelope, falling back to an empty object.
func (e Envelope) Bytes() []byte {
	out, err := json.Marshal(e)
	if err != nil {
		return []byte("{}")
	}
	return out
}

// String returns the JSON representation for logging.
func (e Envelope) String() string {
	return string(e.Bytes())
}
