package stories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/gorilla/mux"
)

const DefaultMaxUploadBytes = 25 << 20

type (
	service interface {
		UploadAudio(ctx context.Context, data []byte, contentType string) (UploadResult, error)
		TranscribeAudio(ctx context.Context, data []byte, languageCode string) (Transcription, error)
		AnalyzeTranscript(ctx context.Context, transcript string) (Analysis, error)
		CreateStory(ctx context.Context, req CreateStoryReq) (string, error)
		ListStories(ctx context.Context, f ListFilter) ([]Story, error)
		GetStoryByID(ctx context.Context, id string) (Story, error)
	}

	controller struct {
		svc            service
		maxUploadBytes int64
	}

	errorResponse struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
)

// InstallController registers the story API routes on r.
func InstallController(r *mux.Router, svc service, maxUploadBytes int64) {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	c := controller{svc: svc, maxUploadBytes: maxUploadBytes}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/upload", c.upload).Methods(http.MethodPost)
	api.HandleFunc("/transcribe", c.transcribe).Methods(http.MethodPost)
	api.HandleFunc("/story-analysis", c.analyze).Methods(http.MethodPost)
	api.HandleFunc("/stories", c.createStory).Methods(http.MethodPost)
	api.HandleFunc("/stories", c.listStories).Methods(http.MethodGet)
	api.HandleFunc("/stories/", c.getStory).Methods(http.MethodGet)
	api.HandleFunc("/stories/{id}", c.getStory).Methods(http.MethodGet)
}

func (c controller) upload(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := c.readAudio(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := c.svc.UploadAudio(r.Context(), data, contentType)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success  bool   `json:"success"`
		AudioURL string `json:"audioUrl"`
		Checksum string `json:"checksum"`
	}{true, res.AudioURL, res.Checksum})
}

func (c controller) transcribe(w http.ResponseWriter, r *http.Request) {
	data, _, err := c.readAudio(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := c.svc.TranscribeAudio(r.Context(), data, r.FormValue("languageCode"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		Transcription
	}{true, res})
}

func (c controller) analyze(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Transcript string `json:"transcript"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := c.svc.AnalyzeTranscript(r.Context(), req.Transcript)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success bool     `json:"success"`
		Data    Analysis `json:"data"`
		Message string   `json:"message"`
	}{true, res, "Transcript translated successfully"})
}

func (c controller) createStory(w http.ResponseWriter, r *http.Request) {
	var req CreateStoryReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	id, err := c.svc.CreateStory(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success bool   `json:"success"`
		ID      string `json:"id"`
	}{true, id})
}

func (c controller) listStories(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := c.svc.ListStories(r.Context(), ListFilter{
		Region: q.Get("region"),
		Search: q.Get("search"),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success bool    `json:"success"`
		Count   int     `json:"count"`
		Stories []Story `json:"stories"`
	}{true, len(res), res})
}

func (c controller) getStory(w http.ResponseWriter, r *http.Request) {
	res, err := c.svc.GetStoryByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success bool  `json:"success"`
		Story   Story `json:"story"`
	}{true, res})
}

// readAudio returns the bytes and declared content type of the "audio" multipart field.
func (c controller) readAudio(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, c.maxUploadBytes)
	if err := r.ParseMultipartForm(c.maxUploadBytes); err != nil {
		return nil, "", fmt.Errorf("%w: reading multipart form: %v", ErrInvalidInput, err)
	}

	file, header, err := r.FormFile("audio")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, "", fmt.Errorf("%w: audio file missing", ErrInvalidInput)
	}
	if err != nil {
		return nil, "", fmt.Errorf("%w: reading audio file: %v", ErrInvalidInput, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", fmt.Errorf("%w: reading audio file: %v", ErrInvalidInput, err)
	}

	return data, header.Header.Get("Content-Type"), nil
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: decoding request body: %v", ErrInvalidInput, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("writing response: %v", err)
	}
}

// writeError maps an error kind to its HTTP status and a short message. Server-side
// failures do not leak collaborator details, except recognition failures whose
// message is useful to the caller.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := "Internal server error"

	switch {
	case errors.Is(err, ErrInvalidInput):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, ErrNoSpeechDetected):
		status, msg = http.StatusBadRequest, "No speech detected. Please speak clearly."
	case errors.Is(err, ErrNotFound):
		status, msg = http.StatusNotFound, "Story not found"
	case errors.Is(err, ErrUploadFailure):
		msg = "Audio upload failed"
	case errors.Is(err, ErrRecognitionFailure):
		msg = err.Error()
	case errors.Is(err, ErrAnalysisParseFailure), errors.Is(err, ErrAnalysisFailure):
		msg = "Error in transcript processing"
	case errors.Is(err, ErrPersistFailure):
		msg = "Failed to save story"
	case errors.Is(err, ErrQueryFailure):
		msg = "Failed to fetch stories"
	}

	if status >= http.StatusInternalServerError {
		log.Printf("request failed (%d): %v", status, err)
	}
	writeJSON(w, status, errorResponse{Success: false, Error: msg})
}
