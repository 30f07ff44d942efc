package handlers

import (
	"strconv"

	"github.com/vango-go/callbridge/pkg/bridge/directory"
	"github.com/vango-go/callbridge/pkg/bridge/profile"
	"github.com/vango-go/callbridge/pkg/bridge/twiml"
)

// Recognized custom parameter names. They ride on the connect markup and
// come back verbatim in the realtime session's setup message, which is the
// only state a leg carries into its websocket.
const (
	paramName                  = "name"
	paramTo                    = "To"
	paramFrom                  = "From"
	paramSortKey               = "SortKey"
	paramAccountSid            = "AccountSid"
	paramSourceCallSid         = "SourceCallSid"
	paramParentConnectionID    = "parentConnectionId"
	paramCallerPhone           = "callerPhone"
	paramTranslationActive     = "translationActive"
	paramWhichParty            = "whichParty"
	paramSourceLanguageCode    = "sourceLanguageCode"
	paramSourceLanguage        = "sourceLanguage"
	paramSourceLangFriendly    = "sourceLanguageFriendly"
	paramSourceTranscription   = "sourceTranscriptionProvider"
	paramSourceTts             = "sourceTtsProvider"
	paramSourceVoice           = "sourceVoice"
	paramTargetConnectionID    = "targetConnectionId"
	paramTargetCallSid         = "targetCallSid"
	paramTargetLanguageCode    = "targetLanguageCode"
	paramTargetLanguage        = "targetLanguage"
	paramTargetLangFriendly    = "targetLanguageFriendly"
	paramTargetTranscription   = "targetTranscriptionProvider"
	paramTargetTts             = "targetTtsProvider"
	paramTargetVoice           = "targetVoice"
)

func sourceParams(p profile.Profile) []twiml.Param {
	return []twiml.Param{
		{Name: paramName, Value: p.Name},
		{Name: paramSourceLanguageCode, Value: p.LanguageCode},
		{Name: paramSourceLanguage, Value: p.Language},
		{Name: paramSourceLangFriendly, Value: p.LanguageFriendly},
		{Name: paramSourceTranscription, Value: p.TranscriptionProvider},
		{Name: paramSourceTts, Value: p.TtsProvider},
		{Name: paramSourceVoice, Value: p.Voice},
	}
}

func unsetTargetParams() []twiml.Param {
	keys := []string{
		paramTargetConnectionID,
		paramTargetCallSid,
		paramTargetLanguageCode,
		paramTargetLanguage,
		paramTargetLangFriendly,
		paramTargetTranscription,
		paramTargetTts,
		paramTargetVoice,
	}
	params := make([]twiml.Param, 0, len(keys))
	for _, k := range keys {
		params = append(params, twiml.Param{Name: k, Value: directory.Unset})
	}
	return params
}

func boolParam(name string, v bool) twiml.Param {
	return twiml.Param{Name: name, Value: strconv.FormatBool(v)}
}

func paramOr(params map[string]string, key, def string) string {
	if v, ok := params[key]; ok && v != "" {
		return v
	}
	return def
}
