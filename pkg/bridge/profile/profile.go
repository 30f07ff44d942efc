// Package profile holds per-party language and voice settings: the DTMF
// language menu, durable profile records, and the fixed defaults used when
// no profile can be resolved. A missed lookup substitutes a default; it
// never fails a call.
package profile

import (
	"context"

	"github.com/vango-go/callbridge/pkg/bridge/fault"
	"github.com/vango-go/callbridge/pkg/bridge/store"
)

// SKProfile is the sort key of durable profile records; the partition key
// is the party identifier (a phone number, or "agent" for the default
// callee profile).
const SKProfile = "profile"

// AgentKey is the partition key of the default agent profile.
const AgentKey = "agent"

// Profile is one party's own speech settings. LanguageCode is what the
// translation provider uses; Language is what the realtime relay uses.
type Profile struct {
	Name                  string `json:"name" dynamodbav:"name"`
	LanguageCode          string `json:"sourceLanguageCode" dynamodbav:"sourceLanguageCode"`
	Language              string `json:"sourceLanguage" dynamodbav:"sourceLanguage"`
	LanguageFriendly      string `json:"sourceLanguageFriendly,omitempty" dynamodbav:"sourceLanguageFriendly,omitempty"`
	TranscriptionProvider string `json:"sourceTranscriptionProvider" dynamodbav:"sourceTranscriptionProvider"`
	TtsProvider           string `json:"sourceTtsProvider" dynamodbav:"sourceTtsProvider"`
	Voice                 string `json:"sourceVoice" dynamodbav:"sourceVoice"`
	// CalleeNumber routes the outbound leg to a specific handset when set.
	CalleeNumber string `json:"calleeNumber,omitempty" dynamodbav:"calleeNumber,omitempty"`
}

// DefaultLanguageCode is the system default language. Notices and
// greetings are composed in it and translated outward.
const DefaultLanguageCode = "en"

// IsDefaultLanguage reports whether code needs no translation from the
// system default.
func IsDefaultLanguage(code string) bool {
	return code == "en" || code == "en-US"
}

// Default is the profile substituted when no caller profile resolves.
func Default() Profile {
	return Profile{
		Name:                  "English",
		LanguageCode:          "en",
		Language:              "en-US",
		LanguageFriendly:      "English - United States",
		TranscriptionProvider: "Deepgram",
		TtsProvider:           "Amazon",
		Voice:                 "Matthew-Generative",
	}
}

// DefaultAgent is the profile substituted when no agent profile resolves.
func DefaultAgent() Profile {
	return Default()
}

var digitCatalog = map[string]Profile{
	"1": Default(),
	"2": {
		Name:                  "German",
		LanguageCode:          "de",
		Language:              "de-DE",
		LanguageFriendly:      "German",
		TranscriptionProvider: "Deepgram",
		TtsProvider:           "Amazon",
		Voice:                 "Vicki-Generative",
	},
	"3": {
		Name:                  "Spanish",
		LanguageCode:          "es-MX",
		Language:              "es-MX",
		LanguageFriendly:      "Spanish - Mexico",
		TranscriptionProvider: "Deepgram",
		TtsProvider:           "Amazon",
		Voice:                 "Lucia-Generative",
	},
	"4": {
		Name:                  "French",
		LanguageCode:          "fr",
		Language:              "fr-FR",
		LanguageFriendly:      "French",
		TranscriptionProvider: "Deepgram",
		TtsProvider:           "google",
		Voice:                 "fr-FR-Journey-F",
	},
	"5": {
		Name:                  "Russian",
		LanguageCode:          "ru-RU",
		Language:              "ru-RU",
		LanguageFriendly:      "Russian",
		TranscriptionProvider: "Deepgram",
		TtsProvider:           "Amazon",
		Voice:                 "Lupe-Generative",
	},
	"6": {
		Name:                  "Polish",
		LanguageCode:          "pl-PL",
		Language:              "pl-PL",
		LanguageFriendly:      "Polish",
		TranscriptionProvider: "Deepgram",
		TtsProvider:           "Amazon",
		Voice:                 "Lupe-Generative",
	},
}

// ByDigit maps a DTMF digit from the language menu to a profile. Unknown
// or empty digits fall back to the default.
func ByDigit(digit string) Profile {
	if p, ok := digitCatalog[digit]; ok {
		return p
	}
	return Default()
}

// Catalog resolves durable profile records.
type Catalog struct {
	store store.Store
}

func NewCatalog(s store.Store) *Catalog {
	return &Catalog{store: s}
}

// Lookup returns the stored profile for a party identifier, or the default
// when none exists. Only store transport failures surface as errors.
func (c *Catalog) Lookup(ctx context.Context, partyID string) (Profile, error) {
	var p Profile
	err := c.store.Get(ctx, store.Key{PK: partyID, SK: SKProfile}, &p)
	switch {
	case err == nil:
		return p, nil
	case fault.IsNotFound(err):
		return Default(), nil
	default:
		return Profile{}, err
	}
}

// LookupAgent returns the stored default agent profile, or the fixed
// default when none exists.
func (c *Catalog) LookupAgent(ctx context.Context) (Profile, error) {
	var p Profile
	err := c.store.Get(ctx, store.Key{PK: AgentKey, SK: SKProfile}, &p)
	switch {
	case err == nil:
		return p, nil
	case fault.IsNotFound(err):
		return DefaultAgent(), nil
	default:
		return Profile{}, err
	}
}

// Save stores a party's profile.
func (c *Catalog) Save(ctx context.Context, partyID string, p Profile) error {
	return c.store.Put(ctx, store.Key{PK: partyID, SK: SKProfile}, p)
}
