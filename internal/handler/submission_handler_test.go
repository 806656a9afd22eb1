package handler_test

import (
	"bufio"
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/script-playground-api/internal/dto"
	"github.com/noah-isme/script-playground-api/internal/models"
)

func TestRunRequiresSession(t *testing.T) {
	srv := newTestServer(t)
	challenge := srv.seedChallenge(t, "Hello", 0, "<p>hi</p>")

	status, body := srv.do(t, http.MethodPost, "/api/v1/challenges/"+challenge.ID+"/run", dto.RunRequest{Code: `console.log("hi")`})
	require.Equal(t, http.StatusUnauthorized, status)
	require.False(t, body.Success)
	require.Empty(t, body.Data)
}

func TestRunExecutesWithoutPersisting(t *testing.T) {
	srv := newTestServer(t)
	challenge := srv.seedChallenge(t, "Hello", 0, "<p>hi</p>")

	status, body := srv.do(t, http.MethodPost, "/api/v1/challenges/"+challenge.ID+"/run", dto.RunRequest{Code: `console.log("hi", 1)`}, asUser("user-1"))
	require.Equal(t, http.StatusOK, status)
	var run dto.RunResponse
	decodeData(t, body.Data, &run)
	require.True(t, run.Success)
	require.Equal(t, []string{"hi 1"}, run.Logs)

	status, body = srv.do(t, http.MethodPost, "/api/v1/challenges/"+challenge.ID+"/run", dto.RunRequest{Code: `throw new Error("nope")`}, asUser("user-1"))
	require.Equal(t, http.StatusOK, status)
	decodeData(t, body.Data, &run)
	require.False(t, run.Success)
	require.Contains(t, run.Error, "nope")

	var count int64
	require.NoError(t, srv.db.Model(&models.Submission{}).Count(&count).Error)
	require.Zero(t, count)

	status, _ = srv.do(t, http.MethodPost, "/api/v1/challenges/missing/run", dto.RunRequest{Code: "1"}, asUser("user-1"))
	require.Equal(t, http.StatusNotFound, status)

	status, _ = srv.do(t, http.MethodPost, "/api/v1/challenges/"+challenge.ID+"/run", dto.RunRequest{Code: strings.Repeat("x", dto.MaxCodeBytes+1)}, asUser("user-1"))
	require.Equal(t, http.StatusRequestEntityTooLarge, status)
}

func TestSubmitStoresServerSideRunAndListsHistory(t *testing.T) {
	srv := newTestServer(t)
	challenge := srv.seedChallenge(t, "Hello", 0, "<p>hi</p>")

	status, body := srv.do(t, http.MethodPost, "/api/v1/submissions", dto.SubmissionCreateRequest{
		ChallengeID: challenge.ID,
		Code:        `console.log("done")`,
	}, asUser("user-1"))
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, "challenge completed", body.Message)

	var result dto.SubmissionResult
	decodeData(t, body.Data, &result)
	require.True(t, result.Celebrate)
	require.Equal(t, models.SubmissionStatusPassed, result.Submission.Status)
	require.NotNil(t, result.Submission.Output)
	require.Equal(t, "done", *result.Submission.Output)

	status, body = srv.do(t, http.MethodPost, "/api/v1/submissions", dto.SubmissionCreateRequest{
		ChallengeID: challenge.ID,
		Code:        `throw new Error("bad")`,
	}, asUser("user-1"))
	require.Equal(t, http.StatusCreated, status)
	decodeData(t, body.Data, &result)
	require.False(t, result.Celebrate)
	require.Equal(t, models.SubmissionStatusFailed, result.Submission.Status)

	status, body = srv.do(t, http.MethodPost, "/api/v1/submissions", dto.SubmissionCreateRequest{Code: "1"}, asUser("user-1"))
	require.Equal(t, http.StatusBadRequest, status)
	require.Contains(t, string(body.Details), "challengeid")

	status, body = srv.do(t, http.MethodGet, "/api/v1/challenges/"+challenge.ID+"/submissions", nil, asUser("user-1"))
	require.Equal(t, http.StatusOK, status)
	var history []dto.SubmissionResponse
	decodeData(t, body.Data, &history)
	require.Len(t, history, 2)
	require.Equal(t, models.SubmissionStatusFailed, history[0].Status)

	status, body = srv.do(t, http.MethodGet, "/api/v1/challenges/"+challenge.ID+"/submissions", nil, asUser("user-2"))
	require.Equal(t, http.StatusOK, status)
	decodeData(t, body.Data, &history)
	require.Empty(t, history)
}

func TestSubmissionStreamDeliversEvents(t *testing.T) {
	srv := newTestServer(t)
	challenge := srv.seedChallenge(t, "Hello", 0, "<p>hi</p>")
	baseURL := srv.listen(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/v1/submissions/stream", nil)
	require.NoError(t, err)
	req.Header.Set(headerTestUser, "user-1")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	status, _ := srv.do(t, http.MethodPost, "/api/v1/submissions", dto.SubmissionCreateRequest{ChallengeID: challenge.ID, Code: `console.log(1)`}, asUser("user-1"))
	require.Equal(t, http.StatusCreated, status)

	reader := bufio.NewReader(resp.Body)
	var lines []string
	for len(lines) < 2 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		lines = append(lines, line)
	}
	require.Equal(t, "event: submission", lines[0])
	require.Contains(t, lines[1], `"challenge_id":"`+challenge.ID+`"`)
	require.Contains(t, lines[1], `"status":"PASSED"`)
}
