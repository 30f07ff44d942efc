package handlers

import (
	"log/slog"
	"net/http"

	"github.com/vango-go/callbridge/pkg/bridge/twiml"
)

// LanguageSelectorHandler answers the first inbound webhook with the DTMF
// language menu. The gathered digit posts to the call-setup webhook; on
// timeout the menu replays.
type LanguageSelectorHandler struct {
	Logger *slog.Logger
}

func (h LanguageSelectorHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeTwiML(w, twiml.LanguageMenu("/call-setup", "/language-selector"))
}
