package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/vango-go/callbridge/pkg/bridge/config"
	"github.com/vango-go/callbridge/pkg/bridge/fault"
	"github.com/vango-go/callbridge/pkg/bridge/linker"
	"github.com/vango-go/callbridge/pkg/bridge/metrics"
	"github.com/vango-go/callbridge/pkg/bridge/profile"
	"github.com/vango-go/callbridge/pkg/bridge/proxy"
	"github.com/vango-go/callbridge/pkg/bridge/telephony"
	"github.com/vango-go/callbridge/pkg/bridge/twiml"
)

// CalleeGreeting is spoken to the outbound party when their leg answers,
// localized into their language.
const CalleeGreeting = "Initiating translation session."

// InitiateCallRequest triggers the second leg of a translated call. The
// caller* fields describe the already-connected first leg and are mirrored
// into the Callee's session parameters; callee, when present, overrides
// the stored agent profile.
type InitiateCallRequest struct {
	CallerConnectionID string `json:"callerConnectionId"`
	CallerCallSid      string `json:"callerCallSid"`

	// To is the number the Caller dialed; it becomes the outbound leg's
	// caller id and the correlation lease key.
	To         string `json:"to"`
	From       string `json:"from"`
	AccountSid string `json:"accountSid"`

	CallerLanguageCode          string `json:"callerLanguageCode"`
	CallerLanguage              string `json:"callerLanguage"`
	CallerLanguageFriendly      string `json:"callerLanguageFriendly,omitempty"`
	CallerTranscriptionProvider string `json:"callerTranscriptionProvider"`
	CallerTtsProvider           string `json:"callerTtsProvider"`
	CallerVoice                 string `json:"callerVoice"`

	Callee *CalleeOverride `json:"callee,omitempty"`
}

// CalleeOverride carries explicit Callee details when the trigger wants to
// bypass agent profile resolution.
type CalleeOverride struct {
	Name                  string `json:"name"`
	LanguageCode          string `json:"languageCode"`
	Language              string `json:"language"`
	LanguageFriendly      string `json:"languageFriendly,omitempty"`
	TranscriptionProvider string `json:"transcriptionProvider"`
	TtsProvider           string `json:"ttsProvider"`
	Voice                 string `json:"voice"`
	Number                string `json:"number,omitempty"`
}

// InitiateCallResult reports a placed second leg.
type InitiateCallResult struct {
	CalleeCallSid string `json:"calleeCallSid"`
	LeaseKey      string `json:"leaseKey"`
}

// SecondLegInitiator triggers the outbound Callee leg.
type SecondLegInitiator interface {
	Initiate(ctx context.Context, req InitiateCallRequest) (InitiateCallResult, error)
}

// CallInitiator places the outbound Callee leg and writes the correlation
// lease that lets the Callee's realtime channel find the Caller's call
// identifiers. It serves both the HTTP trigger and the relay handler's
// automatic initiation after the Caller leg establishes.
type CallInitiator struct {
	Config   config.Config
	Profiles *profile.Catalog
	Calls    telephony.CallControl
	Leases   *proxy.Store
	Linker   *linker.Linker
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

func (ci *CallInitiator) Initiate(ctx context.Context, req InitiateCallRequest) (InitiateCallResult, error) {
	if req.CallerConnectionID == "" || req.CallerCallSid == "" {
		return InitiateCallResult{}, fault.New(fault.KindInvalid, "initiate_call",
			"callerConnectionId and callerCallSid are required")
	}

	agent, err := ci.agentContext(ctx, req)
	if err != nil {
		return InitiateCallResult{}, err
	}

	calleeNumber := agent.CalleeNumber
	if calleeNumber == "" {
		calleeNumber = ci.Config.AgentNumber
	}
	callFrom := req.To
	if callFrom == "" {
		callFrom = ci.Config.DefaultFrom
	}
	if callFrom == "" {
		return InitiateCallResult{}, fault.New(fault.KindInvalid, "initiate_call",
			"no outbound caller id: set to in the payload or CALLBRIDGE_DEFAULT_FROM")
	}

	greeting := ci.Linker.WelcomeGreeting(ctx, CalleeGreeting, agent.LanguageCode)

	params := sourceParams(agent)
	params = append(params,
		twiml.Param{Name: paramTo, Value: calleeNumber},
		twiml.Param{Name: paramFrom, Value: req.To},
		twiml.Param{Name: paramSortKey, Value: callFrom},
		twiml.Param{Name: paramAccountSid, Value: req.AccountSid},
		twiml.Param{Name: paramParentConnectionID, Value: req.CallerConnectionID},
		boolParam(paramTranslationActive, true),
		twiml.Param{Name: paramWhichParty, Value: "callee"},
		twiml.Param{Name: paramCallerPhone, Value: req.From},
		twiml.Param{Name: paramTargetConnectionID, Value: req.CallerConnectionID},
		twiml.Param{Name: paramTargetCallSid, Value: req.CallerCallSid},
		twiml.Param{Name: paramTargetLanguageCode, Value: req.CallerLanguageCode},
		twiml.Param{Name: paramTargetLanguage, Value: req.CallerLanguage},
		twiml.Param{Name: paramTargetLangFriendly, Value: req.CallerLanguageFriendly},
		twiml.Param{Name: paramTargetTranscription, Value: req.CallerTranscriptionProvider},
		twiml.Param{Name: paramTargetTts, Value: req.CallerTtsProvider},
		twiml.Param{Name: paramTargetVoice, Value: req.CallerVoice},
	)

	markup := twiml.Relay(ci.Config.RelayURL(), twiml.SessionAttributes{
		WelcomeGreeting:       greeting,
		Language:              agent.Language,
		TranscriptionProvider: agent.TranscriptionProvider,
		TtsProvider:           agent.TtsProvider,
		Voice:                 agent.Voice,
	}, params)

	placed, err := ci.Calls.PlaceCall(ctx, telephony.CallRequest{
		To:    calleeNumber,
		From:  callFrom,
		TwiML: markup,
	})
	if err != nil {
		ci.Metrics.RecordError("initiate_call", string(fault.KindOf(err)))
		return InitiateCallResult{}, err
	}

	if _, err := ci.Leases.Lease(ctx, callFrom, req.CallerCallSid, placed.CallSid); err != nil {
		if fault.IsLeaseConflict(err) {
			ci.Metrics.RecordLeaseConflict()
			// The outbound leg is already ringing against a correlation key
			// someone else holds; tear it down rather than cross the calls.
			if cerr := ci.Calls.CompleteCall(ctx, placed.CallSid); cerr != nil {
				ci.Logger.Error("failed to terminate conflicting outbound leg",
					"call_sid", placed.CallSid, "error", cerr)
			}
		}
		return InitiateCallResult{}, err
	}

	ci.Logger.Info("callee leg placed",
		"callee_call_sid", placed.CallSid,
		"caller_call_sid", req.CallerCallSid,
		"lease_key", callFrom,
	)
	return InitiateCallResult{CalleeCallSid: placed.CallSid, LeaseKey: callFrom}, nil
}

// agentContext resolves the Callee's profile: an explicit payload override
// wins, then the stored agent profile, then the fixed default.
func (ci *CallInitiator) agentContext(ctx context.Context, req InitiateCallRequest) (profile.Profile, error) {
	if req.Callee != nil {
		return profile.Profile{
			Name:                  req.Callee.Name,
			LanguageCode:          req.Callee.LanguageCode,
			Language:              req.Callee.Language,
			LanguageFriendly:      req.Callee.LanguageFriendly,
			TranscriptionProvider: req.Callee.TranscriptionProvider,
			TtsProvider:           req.Callee.TtsProvider,
			Voice:                 req.Callee.Voice,
			CalleeNumber:          req.Callee.Number,
		}, nil
	}
	return ci.Profiles.LookupAgent(ctx)
}

// InitiateCallHandler exposes the second-leg trigger over HTTP for
// integrations that route the call externally.
type InitiateCallHandler struct {
	Initiator SecondLegInitiator
	Logger    *slog.Logger
}

func (h InitiateCallHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req InitiateCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, fault.Wrap(fault.KindInvalid, "initiate_call", err))
		return
	}
	res, err := h.Initiator.Initiate(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
