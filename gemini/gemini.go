package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/option"

	"storyweaver/stories"
)

const DefaultModel = "gemini-2.5-flash"

type Config struct {
	ProjectID       string
	Location        string
	Model           string
	CredentialsFile string
}

// Analyzer asks a Vertex AI Gemini model for the structured story analysis.
type Analyzer struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

var _ stories.Analyzer = (*Analyzer)(nil)

func NewAnalyzer(ctx context.Context, cfg Config, systemInstruction string) (*Analyzer, error) {
	if cfg.ProjectID == "" || cfg.Location == "" {
		return nil, errors.New("gemini: project id and location are required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := genai.NewClient(ctx, cfg.ProjectID, cfg.Location, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating vertex ai client: %w", err)
	}

	name := cfg.Model
	if name == "" {
		name = DefaultModel
	}
	model := client.GenerativeModel(name)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemInstruction)},
	}
	model.ResponseMIMEType = "application/json"

	return &Analyzer{client: client, model: model}, nil
}

func (a *Analyzer) Analyze(ctx context.Context, text string) (string, error) {
	resp, err := a.model.GenerateContent(ctx, genai.Text(text))
	if err != nil {
		return "", fmt.Errorf("vertex ai generate content: %w", err)
	}
	return responseText(resp)
}

func (a *Analyzer) Close() error {
	return a.client.Close()
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("vertex ai returned no candidates")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	if b.Len() == 0 {
		return "", errors.New("vertex ai returned no text")
	}
	return b.String(), nil
}
