package stories

import (
	"context"

	"github.com/shopspring/decimal"
)

type (
	// Recognizer turns audio bytes into recognition results.
	Recognizer interface {
		Recognize(ctx context.Context, audio []byte, cfg RecognitionConfig) (RecognitionResult, error)
	}

	RecognitionConfig struct {
		LanguageCode               string
		Encoding                   string
		EnableAutomaticPunctuation bool
	}

	RecognitionResult struct {
		Results []RecognitionSegment
	}

	// RecognitionSegment holds the alternatives for one stretch of audio, most likely first.
	RecognitionSegment struct {
		Alternatives []Alternative
	}

	Alternative struct {
		Transcript string
		Confidence decimal.Decimal
	}

	// Analyzer sends a transcript to a generative model and returns its raw text answer.
	// Implementations are configured with AnalysisInstruction as their system instruction.
	Analyzer interface {
		Analyze(ctx context.Context, text string) (string, error)
	}

	// BlobStore writes an object under name and returns a URL it can be fetched from.
	BlobStore interface {
		Put(ctx context.Context, name string, data []byte, contentType string) (string, error)
	}
)
