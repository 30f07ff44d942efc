package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/vango-go/callbridge/pkg/bridge/fault"
	"github.com/vango-go/callbridge/pkg/bridge/params"
)

const DefaultDeepLBaseURL = "https://api.deepl.com"

// awsToDeepL maps the language codes the rest of the system speaks to
// DeepL's. Codes without a mapping pass through unchanged for the target
// and auto-detect for the source.
var awsToDeepL = map[string]string{
	"en": "EN-US",
	"de": "DE",
	"es": "ES",
	"fr": "FR",
	"it": "IT",
	"ja": "JA",
	"pl": "PL",
	"pt": "PT-PT",
	"ru": "RU",
	"zh": "ZH",
}

// DeepL translates via the DeepL REST API. The API key is read from the
// parameter source per call path, not cached at construction, so rotation
// takes effect without a restart.
type DeepL struct {
	httpClient *http.Client
	baseURL    string
	keySource  params.Source
	keyName    string
}

func NewDeepL(httpClient *http.Client, baseURL string, keySource params.Source, keyName string) *DeepL {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = DefaultDeepLBaseURL
	}
	return &DeepL{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		keySource:  keySource,
		keyName:    keyName,
	}
}

type deeplRequest struct {
	Text       []string `json:"text"`
	SourceLang string   `json:"source_lang,omitempty"`
	TargetLang string   `json:"target_lang"`
	Formality  string   `json:"formality,omitempty"`
}

type deeplResponse struct {
	Translations []struct {
		DetectedSourceLanguage string `json:"detected_source_language"`
		Text                   string `json:"text"`
	} `json:"translations"`
}

func (d *DeepL) Translate(ctx context.Context, text, sourceLang, targetLang string) (Result, error) {
	key, err := d.keySource.Get(ctx, d.keyName, true)
	if err != nil {
		return Result{}, err
	}

	target := awsToDeepL[targetLang]
	if target == "" {
		target = targetLang
	}

	// Source language is omitted so DeepL auto-detects; the mapped code is
	// lossy for regional variants like es-MX.
	body, err := json.Marshal(deeplRequest{
		Text:       []string{text},
		TargetLang: target,
		Formality:  "prefer_more",
	})
	if err != nil {
		return Result{}, fault.Wrap(fault.KindInvalid, "translate.deepl", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/v2/translate", bytes.NewReader(body))
	if err != nil {
		return Result{}, fault.Wrap(fault.KindInvalid, "translate.deepl", err)
	}
	req.Header.Set("Authorization", "DeepL-Auth-Key "+key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return Result{}, fault.Wrap(fault.KindUnavailable, "translate.deepl", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fault.New(fault.KindUnavailable, "translate.deepl",
			fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}

	var decoded deeplResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Result{}, fault.Wrap(fault.KindUnavailable, "translate.deepl", err)
	}
	if len(decoded.Translations) == 0 {
		return Result{}, fault.New(fault.KindUnavailable, "translate.deepl", "empty translations")
	}

	return Result{
		TranslatedText:     decoded.Translations[0].Text,
		SourceLanguageCode: sourceLang,
		TargetLanguageCode: targetLang,
	}, nil
}
