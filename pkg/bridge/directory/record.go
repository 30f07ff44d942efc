package directory

// Party identifies which side of the pair a leg belongs to.
type Party string

const (
	PartyCaller Party = "caller"
	PartyCallee Party = "callee"
)

// Status is the lifecycle state of one call leg.
type Status string

const (
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
)

// Unset is the sentinel for mirrored attributes that are not yet known.
// The Caller's record carries it until the Callee leg links back.
const Unset = "notset"

// SKConnection is the sort key shared by every connection record.
const SKConnection = "connection"

// Record is the durable state of one call leg, keyed by the identifier of
// the leg's realtime channel. The source* attributes are this party's own
// speech settings; the target* attributes mirror the opposite party's and
// hold Unset until the legs are linked.
type Record struct {
	ConnectionID string `json:"pk" dynamodbav:"pk"`
	RecordType   string `json:"sk" dynamodbav:"sk"`

	CallStatus Status `json:"callStatus" dynamodbav:"callStatus"`
	CallSid    string `json:"callSid" dynamodbav:"callSid"`
	WhichParty Party  `json:"whichParty" dynamodbav:"whichParty"`

	TranslationActive bool `json:"translationActive" dynamodbav:"translationActive"`

	From        string `json:"from,omitempty" dynamodbav:"from,omitempty"`
	To          string `json:"to,omitempty" dynamodbav:"to,omitempty"`
	AccountSid  string `json:"accountSid,omitempty" dynamodbav:"accountSid,omitempty"`
	CallerPhone string `json:"callerPhone,omitempty" dynamodbav:"callerPhone,omitempty"`

	SourceLanguageCode          string `json:"sourceLanguageCode" dynamodbav:"sourceLanguageCode"`
	SourceLanguage              string `json:"sourceLanguage" dynamodbav:"sourceLanguage"`
	SourceLanguageFriendly      string `json:"sourceLanguageFriendly,omitempty" dynamodbav:"sourceLanguageFriendly,omitempty"`
	SourceVoice                 string `json:"sourceVoice" dynamodbav:"sourceVoice"`
	SourceTranscriptionProvider string `json:"sourceTranscriptionProvider" dynamodbav:"sourceTranscriptionProvider"`
	SourceTtsProvider           string `json:"sourceTtsProvider" dynamodbav:"sourceTtsProvider"`

	TargetConnectionID          string `json:"targetConnectionId" dynamodbav:"targetConnectionId"`
	TargetCallSid               string `json:"targetCallSid" dynamodbav:"targetCallSid"`
	TargetLanguageCode          string `json:"targetLanguageCode" dynamodbav:"targetLanguageCode"`
	TargetLanguage              string `json:"targetLanguage" dynamodbav:"targetLanguage"`
	TargetLanguageFriendly      string `json:"targetLanguageFriendly,omitempty" dynamodbav:"targetLanguageFriendly,omitempty"`
	TargetVoice                 string `json:"targetVoice" dynamodbav:"targetVoice"`
	TargetTranscriptionProvider string `json:"targetTranscriptionProvider" dynamodbav:"targetTranscriptionProvider"`
	TargetTtsProvider           string `json:"targetTtsProvider" dynamodbav:"targetTtsProvider"`
}

// Linked reports whether this leg knows its opposite leg.
func (r Record) Linked() bool {
	return r.TargetConnectionID != "" && r.TargetConnectionID != Unset
}

// Update is a typed partial update of a Record. Only non-nil fields are
// written; attribute names are fixed here rather than passed as an open
// map, so nothing outside the known schema can reach the store.
type Update struct {
	CallStatus        *Status
	TranslationActive *bool

	TargetConnectionID          *string
	TargetCallSid               *string
	TargetLanguageCode          *string
	TargetLanguage              *string
	TargetLanguageFriendly      *string
	TargetVoice                 *string
	TargetTranscriptionProvider *string
	TargetTtsProvider           *string
}

func (u Update) fields() map[string]any {
	fields := make(map[string]any)
	if u.CallStatus != nil {
		fields["callStatus"] = string(*u.CallStatus)
	}
	if u.TranslationActive != nil {
		fields["translationActive"] = *u.TranslationActive
	}
	if u.TargetConnectionID != nil {
		fields["targetConnectionId"] = *u.TargetConnectionID
	}
	if u.TargetCallSid != nil {
		fields["targetCallSid"] = *u.TargetCallSid
	}
	if u.TargetLanguageCode != nil {
		fields["targetLanguageCode"] = *u.TargetLanguageCode
	}
	if u.TargetLanguage != nil {
		fields["targetLanguage"] = *u.TargetLanguage
	}
	if u.TargetLanguageFriendly != nil {
		fields["targetLanguageFriendly"] = *u.TargetLanguageFriendly
	}
	if u.TargetVoice != nil {
		fields["targetVoice"] = *u.TargetVoice
	}
	if u.TargetTranscriptionProvider != nil {
		fields["targetTranscriptionProvider"] = *u.TargetTranscriptionProvider
	}
	if u.TargetTtsProvider != nil {
		fields["targetTtsProvider"] = *u.TargetTtsProvider
	}
	return fields
}

// MirrorOf fills the target* side of an Update from the opposite leg's own
// settings.
func MirrorOf(other Record) Update {
	return Update{
		TargetConnectionID:          &other.ConnectionID,
		TargetCallSid:               &other.CallSid,
		TargetLanguageCode:          &other.SourceLanguageCode,
		TargetLanguage:              &other.SourceLanguage,
		TargetLanguageFriendly:      &other.SourceLanguageFriendly,
		TargetVoice:                 &other.SourceVoice,
		TargetTranscriptionProvider: &other.SourceTranscriptionProvider,
		TargetTtsProvider:           &other.SourceTtsProvider,
	}
}
