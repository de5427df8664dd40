package judge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"codeduel/internal/common"
	"codeduel/internal/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		id   int
		want model.SubmissionStatus
	}{
		{1, model.StatusInQueue},
		{2, model.StatusProcessing},
		{3, model.StatusAccepted},
		{4, model.StatusWrongAnswer},
		{5, model.StatusTimeLimitExceeded},
		{6, model.StatusCompilationError},
		{7, model.StatusRuntimeError},
		{12, model.StatusRuntimeError},
		{13, model.StatusSystemError},
		{14, model.StatusSystemError},
		{99, model.StatusSystemError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Status{ID: tc.id}.SubmissionStatus(), "status id %d", tc.id)
	}
}

func TestExecuteSendsRequestAndDecodesResponse(t *testing.T) {
	var received Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/submissions", r.URL.Path)
		require.Equal(t, "true", r.URL.Query().Get("wait"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		out := "42"
		json.NewEncoder(w).Encode(Response{
			Status: Status{ID: StatusAccepted, Description: "Accepted"},
			Stdout: &out,
		})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, 10*time.Second)
	expected := "42"
	resp, err := client.Execute(context.Background(), Request{
		SourceCode:     "code",
		LanguageID:     "go",
		Stdin:          "6 7",
		ExpectedOutput: &expected,
		CPUTimeLimit:   2,
		WallTimeLimit:  4,
	})
	require.NoError(t, err)

	assert.Equal(t, StatusAccepted, resp.Status.ID)
	require.NotNil(t, resp.Stdout)
	assert.Equal(t, "42", *resp.Stdout)
	assert.Equal(t, "6 7", received.Stdin)
	assert.Equal(t, 2.0, received.CPUTimeLimit)
}

func TestExecuteServerErrorIsServiceUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, 10*time.Second)
	_, err := client.Execute(context.Background(), Request{WallTimeLimit: 4})
	assert.True(t, errors.Is(err, common.ErrServiceUnavailable))
}

func TestExecuteUnreachableJudge(t *testing.T) {
	client := NewHTTPClient("http://127.0.0.1:1", time.Second)
	_, err := client.Execute(context.Background(), Request{WallTimeLimit: 1})
	assert.True(t, errors.Is(err, common.ErrServiceUnavailable))
}

func TestExecuteTimesOutAgainstHungJudge(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer func() {
		close(release)
		server.Close()
	}()

	client := NewHTTPClient(server.URL, 50*time.Millisecond)
	start := time.Now()
	_, err := client.Execute(context.Background(), Request{WallTimeLimit: 0})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}
