package stories

import "errors"

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrNotFound             = errors.New("story not found")
	ErrNoSpeechDetected     = errors.New("no speech detected")
	ErrUploadFailure        = errors.New("audio upload failed")
	ErrRecognitionFailure   = errors.New("speech recognition failed")
	ErrAnalysisFailure      = errors.New("transcript analysis failed")
	ErrAnalysisParseFailure = errors.New("transcript analysis returned malformed output")
	ErrPersistFailure       = errors.New("persisting story failed")
	ErrQueryFailure         = errors.New("querying stories failed")
)

// stageErrors lists every kind in the order they are matched when naming an outcome.
var stageErrors = []struct {
	err  error
	name string
}{
	{ErrInvalidInput, "invalid_input"},
	{ErrNotFound, "not_found"},
	{ErrNoSpeechDetected, "no_speech"},
	{ErrUploadFailure, "upload_failure"},
	{ErrRecognitionFailure, "recognition_failure"},
	{ErrAnalysisParseFailure, "analysis_parse_failure"},
	{ErrAnalysisFailure, "analysis_failure"},
	{ErrPersistFailure, "persist_failure"},
	{ErrQueryFailure, "query_failure"},
}

// Outcome names the error kind of err for metrics labels. A nil error is "ok".
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	for _, se := range stageErrors {
		if errors.Is(err, se.err) {
			return se.name
		}
	}
	return "error"
}
