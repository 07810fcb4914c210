package stories

import (
	"context"
	"errors"
	"fmt"
	"log"
	"mime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"storyweaver/b3"
)

const (
	DefaultLanguageCode = "en-IN"
	DefaultEncoding     = "WEBM_OPUS"
	DefaultContentType  = "audio/webm"

	objectPrefix = "stories/"
)

var audioExtensions = map[string]string{
	"audio/webm":  ".webm",
	"video/webm":  ".webm",
	"audio/ogg":   ".ogg",
	"audio/mpeg":  ".mp3",
	"audio/mp3":   ".mp3",
	"audio/wav":   ".wav",
	"audio/wave":  ".wav",
	"audio/x-wav": ".wav",
	"audio/mp4":   ".m4a",
	"audio/m4a":   ".m4a",
	"audio/x-m4a": ".m4a",
	"audio/flac":  ".flac",
}

type (
	repo interface {
		CreateStory(ctx context.Context, s Story) (string, error)
		GetStoryByID(ctx context.Context, id string) (Story, error)
		ListStories(ctx context.Context, f ListFilter) ([]Story, error)
	}

	// StageObserver is told how each pipeline and listing stage ended.
	StageObserver interface {
		ObserveStage(stage string, d time.Duration, outcome string)
	}

	Options struct {
		DefaultLanguageCode string
		Encoding            string
		Observer            StageObserver
		Now                 func() time.Time
	}

	svcImpl struct {
		r        repo
		blobs    BlobStore
		rec      Recognizer
		analyzer Analyzer

		defaultLanguage string
		encoding        string
		observer        StageObserver
		now             func() time.Time
	}
)

func NewService(r repo, blobs BlobStore, rec Recognizer, analyzer Analyzer, opts Options) svcImpl {
	s := svcImpl{
		r:               r,
		blobs:           blobs,
		rec:             rec,
		analyzer:        analyzer,
		defaultLanguage: opts.DefaultLanguageCode,
		encoding:        opts.Encoding,
		observer:        opts.Observer,
		now:             opts.Now,
	}
	if s.defaultLanguage == "" {
		s.defaultLanguage = DefaultLanguageCode
	}
	if s.encoding == "" {
		s.encoding = DefaultEncoding
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s svcImpl) observe(stage string, start time.Time, err error) {
	if s.observer == nil {
		return
	}
	s.observer.ObserveStage(stage, time.Since(start), Outcome(err))
}

func (s svcImpl) UploadAudio(ctx context.Context, data []byte, contentType string) (res UploadResult, err error) {
	defer func(start time.Time) { s.observe("upload", start, err) }(time.Now())

	if len(data) == 0 {
		return UploadResult{}, fmt.Errorf("upload audio: %w: audio file missing", ErrInvalidInput)
	}
	if contentType == "" {
		contentType = DefaultContentType
	}

	checksum, err := b3.Blake3HashFromBytes(data)
	if err != nil {
		return UploadResult{}, fmt.Errorf("upload audio: %w: %v", ErrUploadFailure, err)
	}

	name := objectPrefix + uuid.NewString() + extensionFor(contentType)
	url, err := s.blobs.Put(ctx, name, data, contentType)
	if err != nil {
		log.Printf("upload audio: storing %s: %v", name, err)
		return UploadResult{}, fmt.Errorf("upload audio: %w: %v", ErrUploadFailure, err)
	}

	return UploadResult{
		AudioURL:    url,
		Checksum:    checksum,
		ObjectName:  name,
		ContentType: contentType,
		Size:        len(data),
	}, nil
}

// extensionFor maps an audio content type to a file extension, ignoring parameters
// such as codecs. Unknown types fall back to .webm, the recorder's native format.
func extensionFor(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = contentType
	}
	if ext, ok := audioExtensions[strings.ToLower(mediaType)]; ok {
		return ext
	}
	return audioExtensions[DefaultContentType]
}

func (s svcImpl) TranscribeAudio(ctx context.Context, data []byte, languageCode string) (res Transcription, err error) {
	defer func(start time.Time) { s.observe("transcribe", start, err) }(time.Now())

	if len(data) == 0 {
		return Transcription{}, fmt.Errorf("transcribe audio: %w: audio file missing", ErrInvalidInput)
	}
	languageCode = strings.TrimSpace(languageCode)
	if languageCode == "" {
		languageCode = s.defaultLanguage
	}

	rr, err := s.rec.Recognize(ctx, data, RecognitionConfig{
		LanguageCode:               languageCode,
		Encoding:                   s.encoding,
		EnableAutomaticPunctuation: true,
	})
	if err != nil {
		log.Printf("transcribe audio: recognizing (%s): %v", languageCode, err)
		return Transcription{}, fmt.Errorf("%w: %v", ErrRecognitionFailure, err)
	}

	transcript, confidence := joinTranscripts(rr)
	if transcript == "" {
		return Transcription{}, fmt.Errorf("transcribe audio: %w", ErrNoSpeechDetected)
	}

	return Transcription{
		Transcript:   transcript,
		LanguageCode: languageCode,
		Confidence:   confidence,
	}, nil
}

// joinTranscripts takes the top alternative of every result in order and joins them
// with single spaces. The returned confidence is the mean over those alternatives.
func joinTranscripts(rr RecognitionResult) (string, decimal.Decimal) {
	parts := make([]string, 0, len(rr.Results))
	sum := decimal.Zero
	n := 0
	for _, r := range rr.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		alt := r.Alternatives[0]
		if t := strings.TrimSpace(alt.Transcript); t != "" {
			parts = append(parts, t)
		}
		sum = sum.Add(alt.Confidence)
		n++
	}

	transcript := strings.TrimSpace(strings.Join(parts, " "))
	if n == 0 || transcript == "" {
		return transcript, decimal.Zero
	}
	return transcript, sum.Div(decimal.NewFromInt(int64(n))).Round(4)
}

func (s svcImpl) AnalyzeTranscript(ctx context.Context, transcript string) (res Analysis, err error) {
	defer func(start time.Time) { s.observe("analyze", start, err) }(time.Now())

	if strings.TrimSpace(transcript) == "" {
		return Analysis{}, fmt.Errorf("analyze transcript: %w: transcript required", ErrInvalidInput)
	}

	raw, err := s.analyzer.Analyze(ctx, transcript)
	if err != nil {
		log.Printf("analyze transcript: %v", err)
		return Analysis{}, fmt.Errorf("analyze transcript: %w: %v", ErrAnalysisFailure, err)
	}

	res, err = parseAnalysis(raw)
	if err != nil {
		log.Printf("analyze transcript: %v", err)
		return Analysis{}, fmt.Errorf("analyze transcript: %w", err)
	}

	return res, nil
}

func (s svcImpl) CreateStory(ctx context.Context, req CreateStoryReq) (id string, err error) {
	defer func(start time.Time) { s.observe("create", start, err) }(time.Now())

	if err := validateCreate(req); err != nil {
		return "", fmt.Errorf("create story: %w", err)
	}

	notes := req.Analysis.CulturalNotes
	if notes == nil {
		notes = []string{}
	}
	story := Story{
		Transcript:     req.Transcript,
		Title:          req.Analysis.Title,
		TranslatedText: req.Analysis.TranslatedText,
		CulturalNotes:  notes,
		Summary:        req.Analysis.Summary,
		AudioURL:       req.AudioURL,
		AudioChecksum:  req.AudioChecksum,
		LanguageCode:   req.LanguageCode,
		LanguageName:   req.LanguageName,
		Region:         req.Region,
		SpeakerName:    req.SpeakerName,
		CreatedAt:      createdAt(s.now()),
	}

	id, err = s.r.CreateStory(ctx, story)
	if err != nil {
		log.Printf("create story: %v", err)
		return "", fmt.Errorf("create story: %w: %v", ErrPersistFailure, err)
	}

	return id, nil
}

// createdAt rounds now up to whole milliseconds, the precision every repository keeps,
// so a stored timestamp is never earlier than the moment the story was created.
func createdAt(now time.Time) time.Time {
	t := now.UTC().Truncate(time.Millisecond)
	if t.Before(now) {
		t = t.Add(time.Millisecond)
	}
	return t
}

func validateCreate(req CreateStoryReq) error {
	var missing []string
	if strings.TrimSpace(req.Transcript) == "" {
		missing = append(missing, "transcript")
	}
	switch {
	case req.Analysis == nil:
		missing = append(missing, "analysis")
	case strings.TrimSpace(req.Analysis.Title) == "":
		missing = append(missing, "analysis.title")
	}
	if strings.TrimSpace(req.AudioURL) == "" {
		missing = append(missing, "audioUrl")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required fields: %s", ErrInvalidInput, strings.Join(missing, ", "))
	}
	return nil
}

func (s svcImpl) ListStories(ctx context.Context, f ListFilter) (res []Story, err error) {
	defer func(start time.Time) { s.observe("list", start, err) }(time.Now())

	f.Region = strings.TrimSpace(f.Region)
	f.Search = strings.TrimSpace(f.Search)
	if f.Region != "" {
		f.Search = ""
	}

	res, err = s.r.ListStories(ctx, f)
	if err != nil {
		log.Printf("list stories (region=%q search=%q): %v", f.Region, f.Search, err)
		return nil, fmt.Errorf("list stories: %w: %v", ErrQueryFailure, err)
	}
	if res == nil {
		res = []Story{}
	}

	return res, nil
}

func (s svcImpl) GetStoryByID(ctx context.Context, id string) (res Story, err error) {
	defer func(start time.Time) { s.observe("get", start, err) }(time.Now())

	id = strings.TrimSpace(id)
	if id == "" {
		return Story{}, fmt.Errorf("get story: %w: story id is required", ErrInvalidInput)
	}

	res, err = s.r.GetStoryByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Story{}, fmt.Errorf("get story %s: %w", id, ErrNotFound)
	}
	if err != nil {
		log.Printf("get story %s: %v", id, err)
		return Story{}, fmt.Errorf("get story %s: %w: %v", id, ErrQueryFailure, err)
	}

	return res, nil
}
