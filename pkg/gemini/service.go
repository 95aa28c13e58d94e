package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"daybrief-backend/pkg/syncerr"
)

// ErrMalformedResponse marks a response that arrived but did not match the
// briefing schema. Callers treat it as a recoverable generation error,
// distinct from a transport failure.
var ErrMalformedResponse = errors.New("malformed briefing response")

type GeminiService struct {
	ApiKey string
}

func NewGeminiService(apiKey string) *GeminiService {
	return &GeminiService{ApiKey: apiKey}
}

// BriefingSection is one block of the generated daily briefing.
type BriefingSection struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// BriefingResult is the typed schema the LLM must produce. It is validated
// at this boundary so malformed output never reaches persistence.
type BriefingResult struct {
	Headline string            `json:"headline"`
	Sections []BriefingSection `json:"sections"`
}

// GenerateBriefing asks the model for a daily briefing over the supplied
// context block (already redacted by the DLP gate) and parses the typed
// result schema.
func (g *GeminiService) GenerateBriefing(ctx context.Context, contextBlock string) (*BriefingResult, error) {
	url := "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.5-flash:generateContent?key=" + g.ApiKey

	prompt := fmt.Sprintf(`You are an assistant that writes a short daily briefing from a user's synced mail, calendar and documents.

Respond with JSON only, no prose, matching exactly:
{"headline": "<one sentence>", "sections": [{"title": "<short title>", "body": "<2-3 sentences>"}]}

Rules:
- At most 4 sections. Typical sections: "Schedule", "Conflicts", "Mail highlights", "Documents".
- Mention calendar conflicts explicitly if any appear in the data.
- Keep redaction tokens like [EMAIL_001] verbatim; never invent the hidden values.

DATA:
%s`, contextBlock)

	payload := map[string]interface{}{
		"contents": []map[string]interface{}{
			{"parts": []map[string]string{{"text": prompt}}},
		},
		"generationConfig": map[string]interface{}{
			"responseMimeType": "application/json",
		},
	}

	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return nil, syncerr.Classify(err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, syncerr.FromStatus(resp.StatusCode, 0, fmt.Errorf("Gemini API error: %s", string(respBody)))
	}

	text, err := extractText(respBody)
	if err != nil {
		return nil, err
	}

	var result BriefingResult
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if result.Headline == "" {
		return nil, fmt.Errorf("%w: missing headline", ErrMalformedResponse)
	}
	return &result, nil
}

func extractText(respBody []byte) (string, error) {
	var result map[string]interface{}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if c, ok := result["candidates"].([]interface{}); ok && len(c) > 0 {
		if cand, ok := c[0].(map[string]interface{}); ok {
			if content, ok := cand["content"].(map[string]interface{}); ok {
				if parts, ok := content["parts"].([]interface{}); ok && len(parts) > 0 {
					if part, ok := parts[0].(map[string]interface{}); ok {
						if text, ok := part["text"].(string); ok {
							return text, nil
						}
					}
				}
			}
		}
	}
	return "", fmt.Errorf("%w: no candidates", ErrMalformedResponse)
}
