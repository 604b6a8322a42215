package protocol

import (
	json "github.com/goccy/go-json"
)

// Response statuses.
const (
	StatusOK             = "OK"
	StatusError          = "ERROR"
	StatusNotImplemented = "NOT IMPLEMENTED"
)

// Response is one output line. Data is emitted only when present: command
// responses carry the bare status, query responses always carry a data array,
// empty result sets included.
type Response struct {
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
}

// OK is the bare success response for commands.
func OK() Response {
	return Response{Status: StatusOK}
}

// OKData is the success response for queries. A nil slice still serializes as
// an empty array because the caller passes a non-nil empty slice.
func OKData(data any) Response {
	return Response{Status: StatusOK, Data: data}
}

// Error is the uniform failure response. The cause is logged, never sent.
func Error() Response {
	return Response{Status: StatusError}
}

// NotImplemented answers recognized but unsupported operations.
func NotImplemented() Response {
	return Response{Status: StatusNotImplemented}
}

// Encode renders the response as a single JSON line without the trailing
// newline.
func (r Response) Encode() ([]byte, error) {
	if r.Data == nil {
		return json.Marshal(struct {
			Status string `json:"status"`
		}{Status: r.Status})
	}

	return json.Marshal(struct {
		Status string `json:"status"`
		Data   any    `json:"data"`
	}{Status: r.Status, Data: r.Data})
}
