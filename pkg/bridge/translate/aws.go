package translate

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awstranslate "github.com/aws/aws-sdk-go-v2/service/translate"
	translatetypes "github.com/aws/aws-sdk-go-v2/service/translate/types"

	"github.com/vango-go/callbridge/pkg/bridge/fault"
)

// AWSAPI is the slice of the Translate client the provider uses.
type AWSAPI interface {
	TranslateText(ctx context.Context, params *awstranslate.TranslateTextInput, optFns ...func(*awstranslate.Options)) (*awstranslate.TranslateTextOutput, error)
}

// AWS translates via Amazon Translate with formal register, masked
// profanity, and brevity on.
type AWS struct {
	client AWSAPI
}

func NewAWS(client AWSAPI) *AWS {
	return &AWS{client: client}
}

func (a *AWS) Translate(ctx context.Context, text, sourceLang, targetLang string) (Result, error) {
	resp, err := a.client.TranslateText(ctx, &awstranslate.TranslateTextInput{
		Text:               aws.String(text),
		SourceLanguageCode: aws.String(sourceLang),
		TargetLanguageCode: aws.String(targetLang),
		Settings: &translatetypes.TranslationSettings{
			Formality: translatetypes.FormalityFormal,
			Profanity: translatetypes.ProfanityMask,
			Brevity:   translatetypes.BrevityOn,
		},
	})
	if err != nil {
		return Result{}, fault.Wrap(fault.KindUnavailable, "translate.aws", err)
	}
	return Result{
		TranslatedText:     aws.ToString(resp.TranslatedText),
		SourceLanguageCode: aws.ToString(resp.SourceLanguageCode),
		TargetLanguageCode: aws.ToString(resp.TargetLanguageCode),
	}, nil
}
