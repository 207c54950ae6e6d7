package moderation

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPAnalyzerAnalyze(t *testing.T) {
	var received AnalysisRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/analyze", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		json.NewEncoder(w).Encode(AnalysisResult{
			Confidence: 0.87,
			Reasons:    []string{"explicit_lyrics"},
		})
	}))
	defer server.Close()

	analyzer := NewHTTPAnalyzer(server.URL, "test-key", 5*time.Second)
	result, err := analyzer.Analyze(context.Background(), AnalysisRequest{
		TrackID:  7,
		Title:    "demo",
		AudioURL: "https://cdn.example.com/audio/demo.mp3",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(7), received.TrackID)
	assert.Equal(t, 0.87, result.Confidence)
	assert.Equal(t, []string{"explicit_lyrics"}, result.Reasons)
}

func TestHTTPAnalyzerServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	analyzer := NewHTTPAnalyzer(server.URL, "", 5*time.Second)
	_, err := analyzer.Analyze(context.Background(), AnalysisRequest{TrackID: 7})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestHTTPAnalyzerConfidenceOutOfRange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(AnalysisResult{Confidence: 1.7})
	}))
	defer server.Close()

	analyzer := NewHTTPAnalyzer(server.URL, "", 5*time.Second)
	_, err := analyzer.Analyze(context.Background(), AnalysisRequest{TrackID: 7})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestHTTPAnalyzerContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server can observe the client disconnect
		// and cancel the request context; otherwise Close blocks forever.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer server.Close()

	analyzer := NewHTTPAnalyzer(server.URL, "", time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := analyzer.Analyze(ctx, AnalysisRequest{TrackID: 7})
	assert.Error(t, err)
}
