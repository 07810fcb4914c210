package whisperx

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"storyweaver/stories"
)

type (
	transcribeResult struct {
		Segments []segment `json:"segments"`
	}

	segment struct {
		Text  string          `json:"text"`
		Start decimal.Decimal `json:"start"`
		End   decimal.Decimal `json:"end"`
		Words []word          `json:"words"`
	}

	word struct {
		Text  string           `json:"word"`
		Start *decimal.Decimal `json:"start"`
		End   *decimal.Decimal `json:"end"`
		Score *decimal.Decimal `json:"score"`
	}
)

// WhisperxTranscriber runs the whisperx CLI on a temporary copy of the audio.
type WhisperxTranscriber struct {
	// Binary defaults to "whisperx" on PATH.
	Binary string
	// Model is passed as --model when set, e.g. "large-v2".
	Model string
}

var _ stories.Recognizer = WhisperxTranscriber{}

var encodingExt = map[string]string{
	"WEBM_OPUS": ".webm",
	"OGG_OPUS":  ".ogg",
	"MP3":       ".mp3",
	"FLAC":      ".flac",
	"LINEAR16":  ".wav",
}

func (w WhisperxTranscriber) Recognize(ctx context.Context, audio []byte, cfg stories.RecognitionConfig) (stories.RecognitionResult, error) {
	dir, err := os.MkdirTemp("", "whisperx-")
	if err != nil {
		return stories.RecognitionResult{}, fmt.Errorf("whisperx: creating work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	ext, ok := encodingExt[strings.ToUpper(cfg.Encoding)]
	if !ok {
		ext = ".webm"
	}
	filePath := filepath.Join(dir, "audio"+ext)
	if err := os.WriteFile(filePath, audio, 0o600); err != nil {
		return stories.RecognitionResult{}, fmt.Errorf("whisperx: writing audio: %w", err)
	}

	if err := w.run(ctx, filePath, dir, cfg.LanguageCode); err != nil {
		return stories.RecognitionResult{}, err
	}

	transcribeResultPath := filepath.Join(dir, "audio.json")
	transcribeResultJSONFile, err := os.Open(transcribeResultPath)
	if err != nil {
		return stories.RecognitionResult{}, fmt.Errorf("opening whisperx transcribe result: %w", err)
	}
	defer transcribeResultJSONFile.Close()

	return decodeResult(transcribeResultJSONFile)
}

func (w WhisperxTranscriber) run(ctx context.Context, filePath, outDir, languageCode string) error {
	bin := w.Binary
	if bin == "" {
		bin = "whisperx"
	}
	args := []string{filePath, "--output_format", "json", "--output_dir", outDir}
	if lang := whisperLanguage(languageCode); lang != "" {
		args = append(args, "--language", lang)
	}
	if w.Model != "" {
		args = append(args, "--model", w.Model)
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("whisperx: stderr pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("whisperx: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting whisperx: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go logLines(&wg, stderr)
	go logLines(&wg, stdout)
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("transcribing with whisperx: %w", err)
	}
	return nil
}

func logLines(wg *sync.WaitGroup, r io.Reader) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Split(bufio.ScanLines)
	for scanner.Scan() {
		log.Println("whisperx:", scanner.Text())
	}
}

// whisperLanguage reduces a locale tag such as "hi-IN" to the ISO 639-1 code whisperx expects.
func whisperLanguage(languageCode string) string {
	lang, _, _ := strings.Cut(strings.TrimSpace(languageCode), "-")
	return strings.ToLower(lang)
}

// decodeResult turns whisperx JSON output into one single-alternative result per segment.
// The confidence of a segment is the mean score of its scored words.
func decodeResult(r io.Reader) (stories.RecognitionResult, error) {
	var tr transcribeResult
	if err := json.NewDecoder(r).Decode(&tr); err != nil {
		return stories.RecognitionResult{}, fmt.Errorf("decoding whisperx json result: %w", err)
	}

	res := stories.RecognitionResult{
		Results: make([]stories.RecognitionSegment, len(tr.Segments)),
	}
	for n, s := range tr.Segments {
		res.Results[n] = stories.RecognitionSegment{
			Alternatives: []stories.Alternative{{
				Transcript: strings.TrimSpace(s.Text),
				Confidence: meanScore(s.Words),
			}},
		}
	}
	return res, nil
}

func meanScore(words []word) decimal.Decimal {
	sum := decimal.Zero
	n := 0
	for _, w := range words {
		if w.Score == nil {
			continue
		}
		sum = sum.Add(*w.Score)
		n++
	}
	if n == 0 {
		return decimal.Zero
	}
	return sum.Div(decimal.NewFromInt(int64(n)))
}
