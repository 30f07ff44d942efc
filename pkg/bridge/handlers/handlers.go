// Package handlers is the HTTP surface: telephony webhooks that return
// call-control markup, the realtime relay websocket both legs connect to,
// the second-leg call trigger, and health endpoints.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/vango-go/callbridge/pkg/bridge/fault"
	"github.com/vango-go/callbridge/pkg/bridge/mw"
)

// ApologyNotice is spoken when call setup cannot complete, instead of a
// silent drop.
const ApologyNotice = "We are unable to connect your call right now. Please try again later."

func writeTwiML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

type errorBody struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	kind := fault.KindOf(err)
	writeJSON(w, statusFor(kind), errorEnvelope{Error: errorBody{
		Kind:      string(kind),
		Message:   err.Error(),
		RequestID: reqID,
	}})
}

func statusFor(kind fault.Kind) int {
	switch kind {
	case fault.KindNotFound:
		return http.StatusNotFound
	case fault.KindLeaseConflict:
		return http.StatusConflict
	case fault.KindInvalid:
		return http.StatusBadRequest
	case fault.KindUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
