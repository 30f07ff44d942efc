package handlers

import (
	"log/slog"
	"net/http"

	"github.com/vango-go/callbridge/pkg/bridge/config"
	"github.com/vango-go/callbridge/pkg/bridge/linker"
	"github.com/vango-go/callbridge/pkg/bridge/profile"
	"github.com/vango-go/callbridge/pkg/bridge/twiml"
)

// CallerGreeting is spoken to the inbound party while the second leg is
// being placed, localized into their language.
const CallerGreeting = "Please wait while we connect you to a translator."

// CallSetupHandler answers the inbound call webhook: it resolves the
// Caller's language profile from the gathered digit (or their stored
// profile), then returns the connect markup that opens the Caller leg's
// realtime session. Mirrored target attributes start unset; the Callee leg
// fills them when it links.
type CallSetupHandler struct {
	Config   config.Config
	Profiles *profile.Catalog
	Linker   *linker.Linker
	Logger   *slog.Logger
}

func (h CallSetupHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		h.Logger.Error("call setup form parse failed", "error", err)
		writeTwiML(w, twiml.Apology(ApologyNotice))
		return
	}

	from := r.PostForm.Get("From")
	to := r.PostForm.Get("To")
	accountSid := r.PostForm.Get("AccountSid")
	callSid := r.PostForm.Get("CallSid")
	digits := r.PostForm.Get("Digits")

	caller, err := h.callerProfile(r, digits, from)
	if err != nil {
		h.Logger.Error("caller profile lookup failed", "from", from, "error", err)
		writeTwiML(w, twiml.Apology(ApologyNotice))
		return
	}

	greeting := h.Linker.WelcomeGreeting(r.Context(), CallerGreeting, caller.LanguageCode)

	params := sourceParams(caller)
	params = append(params,
		twiml.Param{Name: paramTo, Value: to},
		twiml.Param{Name: paramFrom, Value: from},
		twiml.Param{Name: paramSortKey, Value: from},
		twiml.Param{Name: paramAccountSid, Value: accountSid},
		twiml.Param{Name: paramSourceCallSid, Value: callSid},
		boolParam(paramTranslationActive, false),
		twiml.Param{Name: paramWhichParty, Value: "caller"},
	)
	params = append(params, unsetTargetParams()...)

	h.Logger.Info("caller leg setup",
		"call_sid", callSid,
		"from", from,
		"language_code", caller.LanguageCode,
	)

	writeTwiML(w, twiml.Relay(h.Config.RelayURL(), twiml.SessionAttributes{
		WelcomeGreeting:       greeting,
		Language:              caller.Language,
		TranscriptionProvider: caller.TranscriptionProvider,
		TtsProvider:           caller.TtsProvider,
		Voice:                 caller.Voice,
	}, params))
}

// callerProfile prefers the gathered menu digit; without one it falls back
// to the caller's stored profile, and the catalog substitutes the default
// when none exists.
func (h CallSetupHandler) callerProfile(r *http.Request, digits, from string) (profile.Profile, error) {
	if digits != "" {
		return profile.ByDigit(digits), nil
	}
	return h.Profiles.Lookup(r.Context(), from)
}
