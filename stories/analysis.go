package stories

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// AnalysisInstruction is the system instruction every Analyzer is configured with.
const AnalysisInstruction = `You are a cultural linguist and oral historian.

Given a spoken story in a local Indian dialect:
1. Translate it into clear English.
2. Preserve emotional tone.
3. Explain idioms, traditions, rituals, and cultural references.
4. Generate a short meaningful summary.
5. Suggest a suitable title.

Return the response strictly in VALID JSON with keys:
- title (string)
- translatedText (string)
- culturalNotes (array of strings)
- summary (string)

Do NOT include any extra text outside JSON.`

const codeFence = "```"

var analysisKeys = []string{"title", "translatedText", "culturalNotes", "summary"}

// stripCodeFence removes markdown code fences wrapped around s. Text that is already
// valid JSON is returned trimmed but otherwise unchanged, even if a string value in it
// contains a fence. Applying it twice gives the same result as applying it once.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if json.Valid([]byte(s)) {
		return s
	}

	// Text before the first fence, e.g. "Here is the JSON:".
	if !strings.HasPrefix(s, codeFence) {
		if i := strings.Index(s, codeFence); i >= 0 && strings.Count(s, codeFence) >= 2 {
			s = s[i:]
		}
	}

	for strings.HasPrefix(s, codeFence) {
		s = strings.TrimPrefix(s, codeFence)
		s = strings.TrimLeftFunc(s, unicode.IsLetter)
		s = strings.TrimSpace(s)
		if i := strings.LastIndex(s, codeFence); i >= 0 {
			s = strings.TrimSpace(s[:i])
		}
	}
	for strings.HasSuffix(s, codeFence) {
		s = strings.TrimSpace(strings.TrimSuffix(s, codeFence))
	}

	return s
}

// parseAnalysis sanitizes raw analyzer output and decodes it into an Analysis.
func parseAnalysis(raw string) (Analysis, error) {
	cleaned := stripCodeFence(raw)
	if cleaned == "" {
		return Analysis{}, fmt.Errorf("%w: empty analyzer output", ErrAnalysisParseFailure)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &fields); err != nil {
		return Analysis{}, fmt.Errorf("%w: decoding analyzer json: %v", ErrAnalysisParseFailure, err)
	}
	for _, k := range analysisKeys {
		v, ok := fields[k]
		if !ok {
			return Analysis{}, fmt.Errorf("%w: analyzer json missing %q", ErrAnalysisParseFailure, k)
		}
		// A null notes list reads as no notes; the text fields must be strings.
		if k != "culturalNotes" && bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return Analysis{}, fmt.Errorf("%w: analyzer json has null %q", ErrAnalysisParseFailure, k)
		}
	}

	var res Analysis
	dec := json.NewDecoder(bytes.NewReader([]byte(cleaned)))
	if err := dec.Decode(&res); err != nil {
		return Analysis{}, fmt.Errorf("%w: decoding analyzer json: %v", ErrAnalysisParseFailure, err)
	}
	if res.CulturalNotes == nil {
		res.CulturalNotes = []string{}
	}

	return res, nil
}
