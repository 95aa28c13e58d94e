package dlp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func scanHandler(t *testing.T, batches *[][]string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req scanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		texts := make([]string, len(req.Items))
		for i, it := range req.Items {
			texts[i] = it.Text
		}
		*batches = append(*batches, texts)

		resp := scanResponse{}
		for range req.Items {
			resp.Results = append(resp.Results, struct {
				Findings []Finding `json:"findings"`
			}{})
		}
		json.NewEncoder(w).Encode(resp)
	}
}

func TestScanBatchesRequests(t *testing.T) {
	var batches [][]string
	srv := httptest.NewServer(scanHandler(t, &batches))
	defer srv.Close()

	client := NewClient(srv.URL, 2, 0)
	results, err := client.Scan(context.Background(), []string{"a", "b", "c", "d", "e"})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	if len(batches) != 3 {
		t.Fatalf("expected 3 batches of size <=2, got %d", len(batches))
	}
	if len(batches[0]) != 2 || len(batches[2]) != 1 {
		t.Fatalf("unexpected batch sizes: %v", batches)
	}
}

func TestScanRetriesRateLimit(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(scanResponse{Results: []struct {
			Findings []Finding `json:"findings"`
		}{{}}})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 10, 3)
	if _, err := client.Scan(context.Background(), []string{"x"}); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestScanDoesNotRetryClientError(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 10, 3)
	if _, err := client.Scan(context.Background(), []string{"x"}); err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Fatalf("client errors must not retry, got %d attempts", attempts)
	}
}

func TestScanRejectsCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(scanResponse{})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 10, 0)
	if _, err := client.Scan(context.Background(), []string{"x", "y"}); err == nil {
		t.Fatal("expected error on result count mismatch")
	}
}
