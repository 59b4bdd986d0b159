package response

import (
	"encoding/json"
	"net/http"
)

// Envelope is the single top-level response shape. Exactly one envelope
// is produced per request: a success envelope carries request_id + data,
// an error envelope carries status_code + detail.
type Envelope struct {
	RequestID string      `json:"request_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`

	StatusCode int    `json:"status_code,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

// Success builds a success envelope.
func Success(requestID string, data interface{}) *Envelope {
	return &Envelope{
		RequestID: requestID,
		Data:      data,
	}
}

// Failure builds an error envelope.
func Failure(status int, detail string) *Envelope {
	return &Envelope{
		StatusCode: status,
		Detail:     detail,
	}
}

// IsSuccess reports whether the envelope is a success envelope.
func (e *Envelope) IsSuccess() bool {
	return e.StatusCode == 0
}

// WriteJSON writes the envelope, deriving the HTTP status from its kind.
func WriteJSON(w http.ResponseWriter, e *Envelope) {
	status := http.StatusOK
	if !e.IsSuccess() {
		status = e.StatusCode
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(e)
}

// BadRequest writes a 400 error envelope. Used by the transport layer for
// failures that occur before a pipeline request exists (e.g. an unparseable
// multipart form).
func BadRequest(w http.ResponseWriter, detail string) {
	WriteJSON(w, Failure(http.StatusBadRequest, detail))
}

// InternalError writes a 500 error envelope.
func InternalError(w http.ResponseWriter, detail string) {
	WriteJSON(w, Failure(http.StatusInternalServerError, detail))
}
