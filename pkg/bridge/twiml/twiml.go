// Package twiml assembles the call-control markup returned to the
// telephony webhook: the ConversationRelay connect response that opens a
// leg's realtime session, the DTMF language menu, and the apology notice
// used when setup cannot complete.
package twiml

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
)

const header = `<?xml version="1.0" encoding="UTF-8"?>`

// SessionAttributes are set as attributes on the ConversationRelay tag and
// configure the leg's realtime session as a whole.
type SessionAttributes struct {
	WelcomeGreeting       string
	DTMFDetection         bool
	InterruptByDTMF       bool
	Language              string
	TranscriptionProvider string
	TtsProvider           string
	Voice                 string
}

// Param is one named key/value pair attached to the session's setup
// message. Order is preserved in the output.
type Param struct {
	Name  string
	Value string
}

// Relay builds the connect response that opens a bidirectional streaming
// session against url, with the given session attributes and custom
// parameters.
func Relay(url string, attrs SessionAttributes, params []Param) string {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n<Response>\n  <Connect>\n    <ConversationRelay url=\"")
	b.WriteString(escape(url))
	b.WriteString("\"")
	writeAttr(&b, "welcomeGreeting", attrs.WelcomeGreeting)
	writeAttr(&b, "dtmfDetection", fmt.Sprintf("%t", attrs.DTMFDetection))
	writeAttr(&b, "interruptByDtmf", fmt.Sprintf("%t", attrs.InterruptByDTMF))
	writeAttr(&b, "language", attrs.Language)
	writeAttr(&b, "transcriptionProvider", attrs.TranscriptionProvider)
	writeAttr(&b, "ttsProvider", attrs.TtsProvider)
	writeAttr(&b, "voice", attrs.Voice)
	b.WriteString(">\n")
	for _, p := range params {
		b.WriteString(`      <Parameter name="` + escape(p.Name) + `" value="` + escape(p.Value) + "\" />\n")
	}
	b.WriteString("    </ConversationRelay>\n  </Connect>\n</Response>")
	return b.String()
}

type menuEntry struct {
	voice  string
	prompt string
}

var menuEntries = []menuEntry{
	{"Polly.Joanna", "For English, press 1."},
	{"Polly.Marlene", "Für Deutsch, drücken Sie 2."},
	{"Polly.Conchita", "Para español, presione 3."},
	{"Polly.Celine", "Pour français, appuyez sur 4."},
	{"Polly.Tatyana", "Для русского языка, нажмите 5."},
	{"Polly.Ewa", "Dla języka polskiego, naciśnij 6."},
}

// LanguageMenu builds the gather menu that lets a caller pick a language
// with one keypress. action receives the digits; selfPath re-prompts on
// timeout.
func LanguageMenu(action, selfPath string) string {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n<Response>\n")
	b.WriteString(`  <Gather numDigits="1" action="` + escape(action) + "\" method=\"POST\" timeout=\"10\">\n")
	for _, e := range menuEntries {
		b.WriteString(`    <Say voice="` + e.voice + `">` + escape(e.prompt) + "</Say>\n")
	}
	b.WriteString("  </Gather>\n")
	b.WriteString("  <Redirect>" + escape(selfPath) + "</Redirect>\n")
	b.WriteString("</Response>")
	return b.String()
}

// Apology builds the spoken failure notice returned when setup cannot
// complete: the party hears it and the channel is closed, rather than a
// silent drop.
func Apology(message string) string {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n<Response>\n  <Say>")
	b.WriteString(escape(message))
	b.WriteString("</Say>\n  <Hangup/>\n</Response>")
	return b.String()
}

func writeAttr(b *strings.Builder, name, value string) {
	b.WriteString(" " + name + `="` + escape(value) + `"`)
}

func escape(s string) string {
	var buf bytes.Buffer
	if err := xml.EscapeText(&buf, []byte(s)); err != nil {
		return ""
	}
	return buf.String()
}
