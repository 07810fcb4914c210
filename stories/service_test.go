package stories

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

type (
	fakeBlobStore struct {
		mu    sync.Mutex
		names []string
		types []string
		err   error
	}

	fakeRecognizer struct {
		res RecognitionResult
		err error
		cfg RecognitionConfig
	}

	fakeAnalyzer struct {
		raw  string
		err  error
		text string
	}

	failingRepo struct {
		err error
	}

	stageCall struct {
		stage, outcome string
	}

	fakeObserver struct {
		calls []stageCall
	}
)

func (f *fakeBlobStore) Put(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.names = append(f.names, name)
	f.types = append(f.types, contentType)
	return "https://blobs.test/" + name, nil
}

func (f *fakeRecognizer) Recognize(ctx context.Context, audio []byte, cfg RecognitionConfig) (RecognitionResult, error) {
	f.cfg = cfg
	return f.res, f.err
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, text string) (string, error) {
	f.text = text
	return f.raw, f.err
}

func (r failingRepo) CreateStory(ctx context.Context, s Story) (string, error) { return "", r.err }
func (r failingRepo) GetStoryByID(ctx context.Context, id string) (Story, error) {
	return Story{}, r.err
}
func (r failingRepo) ListStories(ctx context.Context, f ListFilter) ([]Story, error) {
	return nil, r.err
}

func (o *fakeObserver) ObserveStage(stage string, d time.Duration, outcome string) {
	o.calls = append(o.calls, stageCall{stage, outcome})
}

func alt(text string, conf string) Alternative {
	return Alternative{Transcript: text, Confidence: decimal.RequireFromString(conf)}
}

func newTestService(t *testing.T, opts Options) (svcImpl, *fakeBlobStore, *fakeRecognizer, *fakeAnalyzer) {
	t.Helper()
	blobs := &fakeBlobStore{}
	rec := &fakeRecognizer{}
	an := &fakeAnalyzer{}
	return NewService(NewSQLRepo(setupTestDB(t)), blobs, rec, an, opts), blobs, rec, an
}

var objectNameRE = regexp.MustCompile(`^stories/[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}\.webm$`)

func TestUploadAudio(t *testing.T) {
	s, blobs, _, _ := newTestService(t, Options{})
	ctx := context.Background()
	audio := []byte("identical audio bytes")

	first, err := s.UploadAudio(ctx, audio, "audio/webm;codecs=opus")
	if err != nil {
		t.Fatalf("UploadAudio: %v", err)
	}
	second, err := s.UploadAudio(ctx, audio, "audio/webm")
	if err != nil {
		t.Fatalf("UploadAudio: %v", err)
	}

	for _, res := range []UploadResult{first, second} {
		if !objectNameRE.MatchString(res.ObjectName) {
			t.Errorf("object name %q does not look like stories/<uuid>.webm", res.ObjectName)
		}
		if !strings.HasPrefix(res.AudioURL, "https://blobs.test/stories/") || !strings.HasSuffix(res.AudioURL, ".webm") {
			t.Errorf("audio url = %q", res.AudioURL)
		}
		if res.Size != len(audio) {
			t.Errorf("size = %d", res.Size)
		}
	}
	if first.AudioURL == second.AudioURL {
		t.Fatalf("identical uploads reused url %q", first.AudioURL)
	}
	if first.Checksum == "" || first.Checksum != second.Checksum {
		t.Fatalf("checksums %q and %q should match for identical bytes", first.Checksum, second.Checksum)
	}
	if blobs.types[0] != "audio/webm;codecs=opus" {
		t.Errorf("content type passed to store = %q", blobs.types[0])
	}
}

func TestUploadAudioExtensions(t *testing.T) {
	s, _, _, _ := newTestService(t, Options{})

	cases := map[string]string{
		"":                ".webm",
		"audio/mpeg":      ".mp3",
		"audio/wav":       ".wav",
		"audio/x-m4a":     ".m4a",
		"AUDIO/OGG":       ".ogg",
		"application/zip": ".webm",
		"not a mime type": ".webm",
	}
	for ct, ext := range cases {
		res, err := s.UploadAudio(context.Background(), []byte("a"), ct)
		if err != nil {
			t.Fatalf("UploadAudio(%q): %v", ct, err)
		}
		if !strings.HasSuffix(res.AudioURL, ext) {
			t.Errorf("UploadAudio(%q) url = %q, want suffix %s", ct, res.AudioURL, ext)
		}
	}
}

func TestUploadAudioErrors(t *testing.T) {
	s, blobs, _, _ := newTestService(t, Options{})

	if _, err := s.UploadAudio(context.Background(), nil, "audio/webm"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty upload error = %v, want ErrInvalidInput", err)
	}
	if len(blobs.names) != 0 {
		t.Fatal("empty upload reached the blob store")
	}

	blobs.err = errors.New("bucket unavailable")
	if _, err := s.UploadAudio(context.Background(), []byte("a"), "audio/webm"); !errors.Is(err, ErrUploadFailure) {
		t.Fatalf("store failure error = %v, want ErrUploadFailure", err)
	}
}

func TestTranscribeAudio(t *testing.T) {
	s, _, rec, _ := newTestService(t, Options{})
	rec.res = RecognitionResult{Results: []RecognitionSegment{
		{Alternatives: []Alternative{alt(" My grandmother ", "0.9"), alt("My grand mother", "0.4")}},
		{},
		{Alternatives: []Alternative{alt("told me this story.", "0.7")}},
	}}

	res, err := s.TranscribeAudio(context.Background(), []byte("audio"), "")
	if err != nil {
		t.Fatalf("TranscribeAudio: %v", err)
	}
	if res.Transcript != "My grandmother told me this story." {
		t.Errorf("transcript = %q", res.Transcript)
	}
	if res.LanguageCode != DefaultLanguageCode || rec.cfg.LanguageCode != DefaultLanguageCode {
		t.Errorf("language = %q / %q, want default", res.LanguageCode, rec.cfg.LanguageCode)
	}
	if rec.cfg.Encoding != DefaultEncoding || !rec.cfg.EnableAutomaticPunctuation {
		t.Errorf("recognition config = %+v", rec.cfg)
	}
	if res.Confidence.String() != "0.8" {
		t.Errorf("confidence = %s, want 0.8", res.Confidence)
	}
}

func TestTranscribeAudioLanguage(t *testing.T) {
	s, _, rec, _ := newTestService(t, Options{DefaultLanguageCode: "hi-IN"})
	rec.res = RecognitionResult{Results: []RecognitionSegment{{Alternatives: []Alternative{alt("namaste", "1")}}}}

	if _, err := s.TranscribeAudio(context.Background(), []byte("a"), ""); err != nil {
		t.Fatalf("TranscribeAudio: %v", err)
	}
	if rec.cfg.LanguageCode != "hi-IN" {
		t.Errorf("configured default not used: %q", rec.cfg.LanguageCode)
	}

	if _, err := s.TranscribeAudio(context.Background(), []byte("a"), "ta-IN"); err != nil {
		t.Fatalf("TranscribeAudio: %v", err)
	}
	if rec.cfg.LanguageCode != "ta-IN" {
		t.Errorf("explicit language not used: %q", rec.cfg.LanguageCode)
	}
}

func TestTranscribeAudioNoSpeech(t *testing.T) {
	cases := map[string]RecognitionResult{
		"no results":      {},
		"no alternatives": {Results: []RecognitionSegment{{}, {}}},
		"blank text":      {Results: []RecognitionSegment{{Alternatives: []Alternative{alt("   ", "0.1")}}}},
	}
	for name, rr := range cases {
		s, _, rec, _ := newTestService(t, Options{})
		rec.res = rr
		if _, err := s.TranscribeAudio(context.Background(), []byte("a"), "en-IN"); !errors.Is(err, ErrNoSpeechDetected) {
			t.Errorf("%s: error = %v, want ErrNoSpeechDetected", name, err)
		}
	}
}

func TestTranscribeAudioErrors(t *testing.T) {
	s, _, rec, _ := newTestService(t, Options{})

	if _, err := s.TranscribeAudio(context.Background(), nil, ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty audio error = %v, want ErrInvalidInput", err)
	}

	rec.err = errors.New("rpc error: code = InvalidArgument desc = bad encoding")
	_, err := s.TranscribeAudio(context.Background(), []byte("a"), "")
	if !errors.Is(err, ErrRecognitionFailure) {
		t.Fatalf("recognizer failure error = %v, want ErrRecognitionFailure", err)
	}
	if !strings.Contains(err.Error(), "bad encoding") {
		t.Fatalf("underlying message not surfaced: %v", err)
	}
}

func TestAnalyzeTranscript(t *testing.T) {
	s, _, _, an := newTestService(t, Options{})
	an.raw = "```json\n" + analysisJSON + "\n```"

	res, err := s.AnalyzeTranscript(context.Background(), "meri dadi ne kaha")
	if err != nil {
		t.Fatalf("AnalyzeTranscript: %v", err)
	}
	if an.text != "meri dadi ne kaha" {
		t.Errorf("analyzer got %q", an.text)
	}
	if res.Title != "The Banyan of Our Village" || len(res.CulturalNotes) != 2 {
		t.Errorf("analysis = %+v", res)
	}
}

func TestAnalyzeTranscriptErrors(t *testing.T) {
	s, _, _, an := newTestService(t, Options{})

	if _, err := s.AnalyzeTranscript(context.Background(), "  "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank transcript error = %v, want ErrInvalidInput", err)
	}

	an.raw = "Sorry, I cannot help with that."
	if _, err := s.AnalyzeTranscript(context.Background(), "text"); !errors.Is(err, ErrAnalysisParseFailure) {
		t.Fatalf("malformed output error = %v, want ErrAnalysisParseFailure", err)
	}

	an.err = errors.New("quota exceeded")
	_, err := s.AnalyzeTranscript(context.Background(), "text")
	if !errors.Is(err, ErrAnalysisFailure) || errors.Is(err, ErrAnalysisParseFailure) {
		t.Fatalf("service failure error = %v, want ErrAnalysisFailure only", err)
	}
}

func validCreateReq() CreateStoryReq {
	return CreateStoryReq{
		Transcript: "meri dadi ne kaha",
		Analysis: &Analysis{
			Title:          "The Banyan",
			TranslatedText: "My grandmother said",
			CulturalNotes:  []string{"Banyan trees are sacred."},
			Summary:        "A memory.",
		},
		AudioURL:      "https://blobs.test/stories/x.webm",
		AudioChecksum: "deadbeef",
		LanguageCode:  "hi-IN",
		LanguageName:  "Hindi",
		Region:        "India",
		SpeakerName:   "Asha",
	}
}

func TestCreateThenGetStory(t *testing.T) {
	s, _, _, _ := newTestService(t, Options{})
	ctx := context.Background()
	req := validCreateReq()

	before := time.Now()
	id, err := s.CreateStory(ctx, req)
	if err != nil {
		t.Fatalf("CreateStory: %v", err)
	}
	if id == "" {
		t.Fatal("CreateStory returned empty id")
	}

	got, err := s.GetStoryByID(ctx, id)
	if err != nil {
		t.Fatalf("GetStoryByID: %v", err)
	}
	if got.ID != id ||
		got.Transcript != req.Transcript ||
		got.Title != req.Analysis.Title ||
		got.TranslatedText != req.Analysis.TranslatedText ||
		got.Summary != req.Analysis.Summary ||
		len(got.CulturalNotes) != 1 || got.CulturalNotes[0] != req.Analysis.CulturalNotes[0] ||
		got.AudioURL != req.AudioURL ||
		got.AudioChecksum != req.AudioChecksum ||
		got.LanguageCode != req.LanguageCode ||
		got.LanguageName != req.LanguageName ||
		got.Region != req.Region ||
		got.SpeakerName != req.SpeakerName {
		t.Fatalf("stored story %+v does not match request %+v", got, req)
	}
	if got.CreatedAt.Before(before) {
		t.Fatalf("createdAt %v is earlier than call time %v", got.CreatedAt, before)
	}
}

func TestCreateStoryMissingFields(t *testing.T) {
	s, _, _, _ := newTestService(t, Options{})
	ctx := context.Background()

	mutations := map[string]func(*CreateStoryReq){
		"transcript": func(r *CreateStoryReq) { r.Transcript = "" },
		"analysis":   func(r *CreateStoryReq) { r.Analysis = nil },
		"analysis.title": func(r *CreateStoryReq) {
			r.Analysis = &Analysis{TranslatedText: "x", CulturalNotes: []string{}, Summary: "s"}
		},
		"audioUrl": func(r *CreateStoryReq) { r.AudioURL = " " },
	}
	for name, mutate := range mutations {
		req := validCreateReq()
		mutate(&req)
		_, err := s.CreateStory(ctx, req)
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("missing %s: error = %v, want ErrInvalidInput", name, err)
		}
		if err != nil && !strings.Contains(err.Error(), name) {
			t.Errorf("missing %s: error %q does not name the field", name, err)
		}
	}

	all, err := s.ListStories(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("ListStories: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("invalid requests persisted %d stories", len(all))
	}
}

func TestCreateStoryUsesServiceClock(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 123_456_789, time.FixedZone("IST", 5*3600+1800))
	s := NewService(NewSQLRepo(setupTestDB(t)), &fakeBlobStore{}, &fakeRecognizer{}, &fakeAnalyzer{}, Options{
		Now: func() time.Time { return now },
	})

	id, err := s.CreateStory(context.Background(), validCreateReq())
	if err != nil {
		t.Fatalf("CreateStory: %v", err)
	}
	got, err := s.GetStoryByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetStoryByID: %v", err)
	}

	want := time.Date(2026, 3, 1, 4, 30, 0, 124_000_000, time.UTC)
	if !got.CreatedAt.Equal(want) || got.CreatedAt.Location() != time.UTC {
		t.Fatalf("createdAt = %v, want %v", got.CreatedAt, want)
	}
}

func TestListStories(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	s := NewService(NewSQLRepo(setupTestDB(t)), &fakeBlobStore{}, &fakeRecognizer{}, &fakeAnalyzer{}, Options{
		Now: func() time.Time {
			tick++
			return base.Add(time.Duration(tick) * time.Hour)
		},
	})
	ctx := context.Background()

	for _, region := range []string{"India", "Nepal", "India"} {
		req := validCreateReq()
		req.Region = region
		if region == "Nepal" {
			req.LanguageName = "Nepali"
		}
		if _, err := s.CreateStory(ctx, req); err != nil {
			t.Fatalf("CreateStory: %v", err)
		}
	}

	all, err := s.ListStories(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("ListStories: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d stories, want 3", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].CreatedAt.After(all[i-1].CreatedAt) {
			t.Fatalf("not newest first: %v then %v", all[i-1].CreatedAt, all[i].CreatedAt)
		}
	}

	india, err := s.ListStories(ctx, ListFilter{Region: "India"})
	if err != nil {
		t.Fatalf("ListStories(India): %v", err)
	}
	if len(india) != 2 {
		t.Fatalf("region=India returned %d stories", len(india))
	}
	for _, st := range india {
		if st.Region != "India" {
			t.Fatalf("region filter leaked %q", st.Region)
		}
	}

	// Region takes precedence over search.
	both, err := s.ListStories(ctx, ListFilter{Region: "Nepal", Search: "Hindi"})
	if err != nil {
		t.Fatalf("ListStories(both): %v", err)
	}
	if len(both) != 1 || both[0].Region != "Nepal" {
		t.Fatalf("region+search returned %+v", both)
	}

	nepali, err := s.ListStories(ctx, ListFilter{Search: "Nepali"})
	if err != nil {
		t.Fatalf("ListStories(search): %v", err)
	}
	if len(nepali) != 1 {
		t.Fatalf("search=Nepali returned %d stories", len(nepali))
	}

	// Exact match only.
	partial, err := s.ListStories(ctx, ListFilter{Search: "Nep"})
	if err != nil {
		t.Fatalf("ListStories(partial): %v", err)
	}
	if partial == nil || len(partial) != 0 {
		t.Fatalf("partial search returned %#v, want empty", partial)
	}
}

func TestGetStoryByIDErrors(t *testing.T) {
	s, _, _, _ := newTestService(t, Options{})

	if _, err := s.GetStoryByID(context.Background(), ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty id error = %v, want ErrInvalidInput", err)
	}
	if _, err := s.GetStoryByID(context.Background(), "9999"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing id error = %v, want ErrNotFound", err)
	}
}

func TestRepositoryFailures(t *testing.T) {
	s := NewService(failingRepo{errors.New("database is locked")}, &fakeBlobStore{}, &fakeRecognizer{}, &fakeAnalyzer{}, Options{})
	ctx := context.Background()

	if _, err := s.CreateStory(ctx, validCreateReq()); !errors.Is(err, ErrPersistFailure) {
		t.Errorf("create error = %v, want ErrPersistFailure", err)
	}
	if _, err := s.ListStories(ctx, ListFilter{}); !errors.Is(err, ErrQueryFailure) {
		t.Errorf("list error = %v, want ErrQueryFailure", err)
	}
	if _, err := s.GetStoryByID(ctx, "1"); !errors.Is(err, ErrQueryFailure) {
		t.Errorf("get error = %v, want ErrQueryFailure", err)
	}
}

func TestStagesAreObserved(t *testing.T) {
	obs := &fakeObserver{}
	s, _, _, _ := newTestService(t, Options{Observer: obs})
	ctx := context.Background()

	_, _ = s.UploadAudio(ctx, []byte("a"), "audio/webm")
	_, _ = s.TranscribeAudio(ctx, []byte("a"), "")
	_, _ = s.GetStoryByID(ctx, "")

	want := []stageCall{
		{"upload", "ok"},
		{"transcribe", "no_speech"},
		{"get", "invalid_input"},
	}
	if len(obs.calls) != len(want) {
		t.Fatalf("observed %+v, want %+v", obs.calls, want)
	}
	for i := range want {
		if obs.calls[i] != want[i] {
			t.Errorf("call %d = %+v, want %+v", i, obs.calls[i], want[i])
		}
	}
}
