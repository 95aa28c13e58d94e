// Package dlp is the HTTP client for the data-loss-prevention scan service.
package dlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"daybrief-backend/pkg/syncerr"
)

// Finding is one sensitive span located by the scan service. Begin/End are
// byte offsets into the scanned text.
type Finding struct {
	Begin    int    `json:"begin"`
	End      int    `json:"end"`
	InfoType string `json:"info_type"` // e.g. "EMAIL", "PHONE", "SSN"
	Quote    string `json:"quote"`
}

type Client struct {
	baseURL    string
	batchSize  int
	maxRetries int
	httpClient *http.Client
}

func NewClient(baseURL string, batchSize, maxRetries int) *Client {
	if batchSize <= 0 {
		batchSize = 20
	}
	return &Client{
		baseURL:    baseURL,
		batchSize:  batchSize,
		maxRetries: maxRetries,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type scanRequest struct {
	Items []scanItem `json:"items"`
}

type scanItem struct {
	Text string `json:"text"`
}

type scanResponse struct {
	Results []struct {
		Findings []Finding `json:"findings"`
	} `json:"results"`
}

// Scan submits texts in batches (bounding request count) and returns one
// finding list per input text, in input order. Rate-limited batches are
// retried with exponential backoff, honoring a Retry-After hint when the
// service sends one.
func (c *Client) Scan(ctx context.Context, texts []string) ([][]Finding, error) {
	results := make([][]Finding, 0, len(texts))

	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := c.scanBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		results = append(results, batch...)
	}

	return results, nil
}

func (c *Client) scanBatch(ctx context.Context, texts []string) ([][]Finding, error) {
	backoff := 500 * time.Millisecond

	for attempt := 0; ; attempt++ {
		findings, err := c.doScan(ctx, texts)
		if err == nil {
			return findings, nil
		}

		if !syncerr.IsRetryable(err) || attempt >= c.maxRetries {
			return nil, err
		}

		delay := backoff
		if hint := syncerr.RetryAfter(err); hint > 0 {
			delay = hint
		}
		log.Printf("[DLP] Batch scan failed (attempt %d/%d), retrying in %s: %v", attempt+1, c.maxRetries, delay, err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
}

func (c *Client) doScan(ctx context.Context, texts []string) ([][]Finding, error) {
	items := make([]scanItem, len(texts))
	for i, t := range texts {
		items[i] = scanItem{Text: t}
	}
	body, err := json.Marshal(scanRequest{Items: items})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/scan", bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, syncerr.Classify(err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		var hint time.Duration
		if v := resp.Header.Get("Retry-After"); v != "" {
			if d, parseErr := time.ParseDuration(v + "s"); parseErr == nil {
				hint = d
			}
		}
		return nil, syncerr.FromStatus(resp.StatusCode, hint, fmt.Errorf("DLP scan error: %s", string(respBody)))
	}

	var parsed scanResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("malformed DLP response: %w", err)
	}
	if len(parsed.Results) != len(texts) {
		return nil, fmt.Errorf("DLP returned %d results for %d texts", len(parsed.Results), len(texts))
	}

	findings := make([][]Finding, len(parsed.Results))
	for i, r := range parsed.Results {
		findings[i] = r.Findings
	}
	return findings, nil
}
