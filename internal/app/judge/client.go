// Package judge wraps the external code-execution service behind the
// request/response contract the rest of the system consumes. One call
// executes one test case.
package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"codeduel/internal/common"
	"codeduel/internal/domain/model"
)

// Status ids reported by the judge.
const (
	StatusInQueue          = 1
	StatusProcessing       = 2
	StatusAccepted         = 3
	StatusWrongAnswer      = 4
	StatusTimeLimitExceeded = 5
	StatusCompilationError = 6
	// 7-12 are runtime error variants, 13-14 internal/format errors.
	statusRuntimeErrorLow   = 7
	statusRuntimeErrorHigh  = 12
	statusInternalErrorLow  = 13
	statusInternalErrorHigh = 14
)

type Request struct {
	SourceCode     string  `json:"source_code"`
	LanguageID     string  `json:"language_id"`
	Stdin          string  `json:"stdin"`
	ExpectedOutput *string `json:"expected_output,omitempty"`
	CPUTimeLimit   float64 `json:"cpu_time_limit"`
	MemoryLimit    int     `json:"memory_limit"`
	WallTimeLimit  float64 `json:"wall_time_limit"`
}

type Response struct {
	Status        Status  `json:"status"`
	Stdout        *string `json:"stdout"`
	Stderr        *string `json:"stderr"`
	CompileOutput *string `json:"compile_output"`
	Time          *string `json:"time"`
	Memory        *int    `json:"memory"`
}

type Status struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

// SubmissionStatus maps a judge status id to our verdict vocabulary.
func (s Status) SubmissionStatus() model.SubmissionStatus {
	switch {
	case s.ID == StatusInQueue:
		return model.StatusInQueue
	case s.ID == StatusProcessing:
		return model.StatusProcessing
	case s.ID == StatusAccepted:
		return model.StatusAccepted
	case s.ID == StatusWrongAnswer:
		return model.StatusWrongAnswer
	case s.ID == StatusTimeLimitExceeded:
		return model.StatusTimeLimitExceeded
	case s.ID == StatusCompilationError:
		return model.StatusCompilationError
	case s.ID >= statusRuntimeErrorLow && s.ID <= statusRuntimeErrorHigh:
		return model.StatusRuntimeError
	case s.ID >= statusInternalErrorLow && s.ID <= statusInternalErrorHigh:
		return model.StatusSystemError
	default:
		return model.StatusSystemError
	}
}

// Client executes a single test case against the external judge.
type Client interface {
	Execute(ctx context.Context, req Request) (*Response, error)
}

type httpClient struct {
	baseURL string
	client  *http.Client
	// grace is added on top of the request's wall time limit so a hung judge
	// cannot stall a submission forever.
	grace time.Duration
}

func NewHTTPClient(baseURL string, grace time.Duration) Client {
	return &httpClient{
		baseURL: baseURL,
		client:  &http.Client{},
		grace:   grace,
	}
}

func (c *httpClient) Execute(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("judge: failed to marshal request: %w", err)
	}

	timeout := time.Duration(req.WallTimeLimit*float64(time.Second)) + c.grace
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+"/submissions?wait=true", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("judge: failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("judge unreachable: %w", common.ErrServiceUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("judge returned status %d: %w", resp.StatusCode, common.ErrServiceUnavailable)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("judge returned unexpected status %d: %w", resp.StatusCode, common.ErrInternalServer)
	}

	var result Response
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("judge: failed to decode response: %w", err)
	}
	return &result, nil
}
