package stories

import (
	"time"

	"github.com/shopspring/decimal"
)

type (
	Story struct {
		ID             string    `json:"id"`
		Transcript     string    `json:"transcript"`
		Title          string    `json:"title"`
		TranslatedText string    `json:"translatedText"`
		CulturalNotes  []string  `json:"culturalNotes"`
		Summary        string    `json:"summary"`
		AudioURL       string    `json:"audioUrl"`
		AudioChecksum  string    `json:"audioChecksum,omitempty"`
		LanguageCode   string    `json:"languageCode,omitempty"`
		LanguageName   string    `json:"languageName,omitempty"`
		Region         string    `json:"region,omitempty"`
		SpeakerName    string    `json:"speakerName,omitempty"`
		CreatedAt      time.Time `json:"createdAt"`
	}

	// Analysis is the structured output of the narrative analyzer.
	Analysis struct {
		Title          string   `json:"title"`
		TranslatedText string   `json:"translatedText"`
		CulturalNotes  []string `json:"culturalNotes"`
		Summary        string   `json:"summary"`
	}

	CreateStoryReq struct {
		Transcript    string    `json:"transcript"`
		Analysis      *Analysis `json:"analysis"`
		AudioURL      string    `json:"audioUrl"`
		AudioChecksum string    `json:"audioChecksum"`
		LanguageCode  string    `json:"languageCode"`
		LanguageName  string    `json:"languageName"`
		Region        string    `json:"region"`
		SpeakerName   string    `json:"speakerName"`
	}

	// ListFilter selects stories by region or language. Region wins when both are set.
	ListFilter struct {
		Region string
		Search string
	}

	UploadResult struct {
		AudioURL    string `json:"audioUrl"`
		Checksum    string `json:"checksum"`
		ObjectName  string `json:"-"`
		ContentType string `json:"-"`
		Size        int    `json:"-"`
	}

	Transcription struct {
		Transcript   string          `json:"transcript"`
		LanguageCode string          `json:"languageCode"`
		Confidence   decimal.Decimal `json:"confidence"`
	}
)
