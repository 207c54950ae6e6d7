package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// AnalysisRequest is what the external content-analysis service receives for
// one claimed track.
type AnalysisRequest struct {
	TrackID  int64  `json:"trackId"`
	Title    string `json:"title"`
	AudioURL string `json:"audioUrl"`
	Lyrics   string `json:"lyrics,omitempty"`
}

// AnalysisResult is the verdict: confidence that the content is problematic,
// plus machine-readable reasons when issues were found.
type AnalysisResult struct {
	Confidence float64  `json:"confidence"`
	Reasons    []string `json:"reasons"`
}

// Analyzer is the contract with the external content-analysis service. Its
// internals are out of scope; only the verdict matters.
type Analyzer interface {
	Analyze(ctx context.Context, req AnalysisRequest) (*AnalysisResult, error)
}

// HTTPAnalyzer 内容分析服务的HTTP客户端
type HTTPAnalyzer struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPAnalyzer 创建新的分析服务客户端
func NewHTTPAnalyzer(baseURL, apiKey string, timeout time.Duration) *HTTPAnalyzer {
	return &HTTPAnalyzer{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Analyze submits one track for analysis. The caller is expected to bound
// ctx so one slow call cannot starve a worker batch.
func (a *HTTPAnalyzer) Analyze(ctx context.Context, req AnalysisRequest) (*AnalysisResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal analysis request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build analysis request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("analysis request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("analysis service returned %d: %s", resp.StatusCode, string(payload))
	}

	var result AnalysisResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode analysis response: %w", err)
	}
	if result.Confidence < 0 || result.Confidence > 1 {
		return nil, fmt.Errorf("analysis service returned confidence out of range: %f", result.Confidence)
	}
	return &result, nil
}
