// Package telephony is the call-control collaborator: placing the
// outbound Callee leg and terminating a leg by its call identifier.
package telephony

import "context"

// CallRequest describes an outbound call carrying inline call-control
// markup.
type CallRequest struct {
	To    string
	From  string
	TwiML string
}

// PlacedCall is the result of placing an outbound call. The call
// identifier is only known once placement returns, which is why the proxy
// lease exists.
type PlacedCall struct {
	CallSid string
}

// CallControl places and terminates calls. CompleteCall against a call
// that already ended returns success: the leg is gone either way, and the
// disconnect cascade must tolerate both sides racing to hang up.
type CallControl interface {
	PlaceCall(ctx context.Context, req CallRequest) (PlacedCall, error)
	CompleteCall(ctx context.Context, callSid string) error
}
