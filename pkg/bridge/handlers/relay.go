package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vango-go/callbridge/pkg/bridge/cascade"
	"github.com/vango-go/callbridge/pkg/bridge/channel"
	"github.com/vango-go/callbridge/pkg/bridge/config"
	"github.com/vango-go/callbridge/pkg/bridge/directory"
	"github.com/vango-go/callbridge/pkg/bridge/fault"
	"github.com/vango-go/callbridge/pkg/bridge/linker"
	"github.com/vango-go/callbridge/pkg/bridge/metrics"
	"github.com/vango-go/callbridge/pkg/bridge/profile"
	"github.com/vango-go/callbridge/pkg/bridge/translate"
)

// relayMessage is the union of inbound realtime frames. The first frame is
// always a setup carrying the custom parameters from the connect markup;
// prompt frames carry transcribed speech.
type relayMessage struct {
	Type string `json:"type"`

	SessionID        string            `json:"sessionId,omitempty"`
	CallSid          string            `json:"callSid,omitempty"`
	From             string            `json:"from,omitempty"`
	To               string            `json:"to,omitempty"`
	AccountSid       string            `json:"accountSid,omitempty"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`

	VoicePrompt string `json:"voicePrompt,omitempty"`
	Lang        string `json:"lang,omitempty"`
	Last        bool   `json:"last,omitempty"`

	Digit       string `json:"digit,omitempty"`
	Description string `json:"description,omitempty"`
}

// RelayHandler is the websocket endpoint both legs' realtime sessions
// connect to. The setup frame creates the leg's connection record (the
// Callee's via the session linker), prompt frames are translated and
// forwarded to the opposite leg, and the socket closing drives the
// disconnect cascade.
type RelayHandler struct {
	Config     config.Config
	Dir        *directory.Directory
	Linker     *linker.Linker
	Cascade    *cascade.Coordinator
	Registry   *channel.Registry
	Translator translate.Translator
	Logger     *slog.Logger
	Metrics    *metrics.Metrics

	// Initiator, when set, places the Callee leg as soon as a Caller leg
	// establishes. Left nil when an external integration owns call routing
	// through the HTTP trigger.
	Initiator SecondLegInitiator
}

func (h RelayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		HandshakeTimeout: h.Config.WSHandshakeTimeout,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Error("relay upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	var setup relayMessage
	if err := conn.ReadJSON(&setup); err != nil {
		h.Logger.Error("relay setup read failed", "error", err)
		return
	}
	if setup.Type != "setup" {
		h.Logger.Error("relay first frame is not setup", "type", setup.Type)
		return
	}

	connectionID := uuid.NewString()
	rec, err := h.establish(r.Context(), connectionID, setup)
	if err != nil {
		h.Logger.Error("relay leg establish failed",
			"connection_id", connectionID, "call_sid", setup.CallSid, "error", err)
		h.Metrics.RecordError("relay", string(fault.KindOf(err)))
		return
	}

	sender := channel.NewWSSender(conn, h.Config.WSWriteTimeout)
	unregister := h.Registry.Register(connectionID, sender)
	defer unregister()

	start := time.Now()
	h.Metrics.RecordLegStart(string(rec.WhichParty))
	h.Logger.Info("leg established",
		"connection_id", connectionID,
		"call_sid", rec.CallSid,
		"which_party", rec.WhichParty,
		"language_code", rec.SourceLanguageCode,
	)

	if h.Initiator != nil && rec.WhichParty == directory.PartyCaller {
		go h.initiateSecondLeg(rec)
	}

	for {
		var msg relayMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		switch msg.Type {
		case "prompt":
			h.relayPrompt(r.Context(), connectionID, msg)
		case "interrupt", "dtmf", "info":
			// Informational; nothing to forward.
		case "error":
			h.Logger.Warn("relay error frame",
				"connection_id", connectionID, "description", msg.Description)
		default:
			h.Logger.Debug("unhandled relay frame",
				"connection_id", connectionID, "type", msg.Type)
		}
	}

	h.Metrics.RecordLegEnd(string(rec.WhichParty), time.Since(start))

	// The request context dies with the socket; the cascade gets its own.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	result, err := h.Cascade.Disconnect(ctx, connectionID)
	if err != nil {
		h.Logger.Error("disconnect cascade failed",
			"connection_id", connectionID, "error", err)
		return
	}
	h.Logger.Info("leg closed",
		"connection_id", connectionID, "which_party", rec.WhichParty, "result", string(result))
}

// initiateSecondLeg triggers the Callee's call off the freshly written
// Caller record.
func (h RelayHandler) initiateSecondLeg(rec directory.Record) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := h.Initiator.Initiate(ctx, InitiateCallRequest{
		CallerConnectionID:          rec.ConnectionID,
		CallerCallSid:               rec.CallSid,
		To:                          rec.To,
		From:                        rec.From,
		AccountSid:                  rec.AccountSid,
		CallerLanguageCode:          rec.SourceLanguageCode,
		CallerLanguage:              rec.SourceLanguage,
		CallerLanguageFriendly:      rec.SourceLanguageFriendly,
		CallerTranscriptionProvider: rec.SourceTranscriptionProvider,
		CallerTtsProvider:           rec.SourceTtsProvider,
		CallerVoice:                 rec.SourceVoice,
	}); err != nil {
		h.Logger.Error("second leg initiation failed",
			"connection_id", rec.ConnectionID, "call_sid", rec.CallSid, "error", err)
	}
}

// establish turns a setup frame into a connection record. The Caller leg
// writes its record directly with mirrored attributes unset; the Callee leg
// goes through the session linker, which also back-fills the Caller.
func (h RelayHandler) establish(ctx context.Context, connectionID string, setup relayMessage) (directory.Record, error) {
	params := setup.CustomParameters
	if params == nil {
		params = map[string]string{}
	}

	callSid := paramOr(params, paramSourceCallSid, setup.CallSid)
	own := profile.Profile{
		Name:                  params[paramName],
		LanguageCode:          params[paramSourceLanguageCode],
		Language:              params[paramSourceLanguage],
		LanguageFriendly:      params[paramSourceLangFriendly],
		TranscriptionProvider: params[paramSourceTranscription],
		TtsProvider:           params[paramSourceTts],
		Voice:                 params[paramSourceVoice],
	}

	if params[paramWhichParty] == "callee" {
		return h.Linker.Link(ctx, linker.LinkRequest{
			ConnectionID:       connectionID,
			CallSid:            setup.CallSid,
			CallerConnectionID: paramOr(params, paramParentConnectionID, params[paramTargetConnectionID]),
			LeaseKey:           params[paramSortKey],

			From:        paramOr(params, paramFrom, setup.From),
			To:          paramOr(params, paramTo, setup.To),
			AccountSid:  paramOr(params, paramAccountSid, setup.AccountSid),
			CallerPhone: params[paramCallerPhone],

			Callee: own,

			CallerLanguageCode:          params[paramTargetLanguageCode],
			CallerLanguage:              params[paramTargetLanguage],
			CallerLanguageFriendly:      params[paramTargetLangFriendly],
			CallerVoice:                 params[paramTargetVoice],
			CallerTranscriptionProvider: params[paramTargetTranscription],
			CallerTtsProvider:           params[paramTargetTts],
			CallerCallSid:               params[paramTargetCallSid],
		})
	}

	active, _ := strconv.ParseBool(params[paramTranslationActive])
	rec := directory.Record{
		ConnectionID:      connectionID,
		CallStatus:        directory.StatusConnected,
		CallSid:           callSid,
		WhichParty:        directory.PartyCaller,
		TranslationActive: active,

		From:        paramOr(params, paramFrom, setup.From),
		To:          paramOr(params, paramTo, setup.To),
		AccountSid:  paramOr(params, paramAccountSid, setup.AccountSid),
		CallerPhone: paramOr(params, paramFrom, setup.From),

		SourceLanguageCode:          own.LanguageCode,
		SourceLanguage:              own.Language,
		SourceLanguageFriendly:      own.LanguageFriendly,
		SourceVoice:                 own.Voice,
		SourceTranscriptionProvider: own.TranscriptionProvider,
		SourceTtsProvider:           own.TtsProvider,

		TargetConnectionID:          paramOr(params, paramTargetConnectionID, directory.Unset),
		TargetCallSid:               paramOr(params, paramTargetCallSid, directory.Unset),
		TargetLanguageCode:          paramOr(params, paramTargetLanguageCode, directory.Unset),
		TargetLanguage:              paramOr(params, paramTargetLanguage, directory.Unset),
		TargetLanguageFriendly:      paramOr(params, paramTargetLangFriendly, directory.Unset),
		TargetVoice:                 paramOr(params, paramTargetVoice, directory.Unset),
		TargetTranscriptionProvider: paramOr(params, paramTargetTranscription, directory.Unset),
		TargetTtsProvider:           paramOr(params, paramTargetTts, directory.Unset),
	}
	if err := h.Dir.Put(ctx, rec); err != nil {
		return directory.Record{}, err
	}
	return rec, nil
}

// relayPrompt translates one transcribed utterance and forwards it to the
// opposite leg. The record is re-read per prompt because the link back-fill
// happens out of band once the Callee connects.
func (h RelayHandler) relayPrompt(ctx context.Context, connectionID string, msg relayMessage) {
	rec, err := h.Dir.Get(ctx, connectionID)
	if err != nil {
		h.Logger.Error("prompt against unknown leg", "connection_id", connectionID, "error", err)
		return
	}
	if !rec.TranslationActive || !rec.Linked() {
		h.Logger.Debug("prompt before legs linked, dropping",
			"connection_id", connectionID, "token", msg.VoicePrompt)
		return
	}

	token := msg.VoicePrompt
	if rec.SourceLanguageCode != rec.TargetLanguageCode {
		res, err := h.Translator.Translate(ctx, token, rec.SourceLanguageCode, rec.TargetLanguageCode)
		if err != nil {
			h.Metrics.RecordTranslation("active", "error")
			h.Logger.Error("prompt translation failed",
				"connection_id", connectionID,
				"source", rec.SourceLanguageCode,
				"target", rec.TargetLanguageCode,
				"error", err)
			return
		}
		h.Metrics.RecordTranslation("active", "ok")
		token = res.TranslatedText
	}

	if err := h.Registry.Send(ctx, rec.TargetConnectionID, channel.Text(token, msg.Last)); err != nil {
		h.Logger.Warn("prompt delivery failed",
			"connection_id", connectionID,
			"target_connection_id", rec.TargetConnectionID,
			"error", err)
		return
	}
	h.Metrics.RecordRelayedToken(string(rec.WhichParty))
}
