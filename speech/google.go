package speech

import (
	"context"
	"fmt"
	"strings"

	gspeech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/shopspring/decimal"
	"google.golang.org/api/option"

	"storyweaver/stories"
)

// GoogleRecognizer transcribes audio with Google Cloud Speech-to-Text.
type GoogleRecognizer struct {
	client *gspeech.Client
}

var _ stories.Recognizer = (*GoogleRecognizer)(nil)

// NewGoogleRecognizer builds a client. An empty credentialsFile falls back to
// application default credentials.
func NewGoogleRecognizer(ctx context.Context, credentialsFile string) (*GoogleRecognizer, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := gspeech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating speech client: %w", err)
	}
	return &GoogleRecognizer{client: client}, nil
}

func (g *GoogleRecognizer) Recognize(ctx context.Context, audio []byte, cfg stories.RecognitionConfig) (stories.RecognitionResult, error) {
	req, err := recognizeRequest(audio, cfg)
	if err != nil {
		return stories.RecognitionResult{}, err
	}

	resp, err := g.client.Recognize(ctx, req)
	if err != nil {
		return stories.RecognitionResult{}, fmt.Errorf("google speech recognize: %w", err)
	}

	return recognitionResult(resp), nil
}

func (g *GoogleRecognizer) Close() error {
	return g.client.Close()
}

func recognizeRequest(audio []byte, cfg stories.RecognitionConfig) (*speechpb.RecognizeRequest, error) {
	enc, ok := speechpb.RecognitionConfig_AudioEncoding_value[strings.ToUpper(cfg.Encoding)]
	if !ok {
		return nil, fmt.Errorf("unsupported audio encoding %q", cfg.Encoding)
	}

	return &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   speechpb.RecognitionConfig_AudioEncoding(enc),
			LanguageCode:               cfg.LanguageCode,
			EnableAutomaticPunctuation: cfg.EnableAutomaticPunctuation,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	}, nil
}

func recognitionResult(resp *speechpb.RecognizeResponse) stories.RecognitionResult {
	res := stories.RecognitionResult{
		Results: make([]stories.RecognitionSegment, len(resp.GetResults())),
	}
	for n, r := range resp.GetResults() {
		alts := make([]stories.Alternative, len(r.GetAlternatives()))
		for i, a := range r.GetAlternatives() {
			alts[i] = stories.Alternative{
				Transcript: a.GetTranscript(),
				Confidence: decimal.NewFromFloat32(a.GetConfidence()),
			}
		}
		res.Results[n] = stories.RecognitionSegment{Alternatives: alts}
	}
	return res
}
