// Package translate is the text-translation collaborator: one capability
// behind one call signature, with provider selection as configuration.
package translate

import "context"

// Result is a completed translation.
type Result struct {
	TranslatedText     string
	SourceLanguageCode string
	TargetLanguageCode string
}

// Translator translates text between two language codes.
type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (Result, error)
}
