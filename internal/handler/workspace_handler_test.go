package handler_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/script-playground-api/internal/dto"
	"github.com/noah-isme/script-playground-api/internal/models"
)

func TestDraftLifecycle(t *testing.T) {
	srv := newTestServer(t)
	challenge := srv.seedChallenge(t, "Hello", 0, "<p>hi</p>")
	path := "/api/v1/challenges/" + challenge.ID + "/draft"

	status, body := srv.do(t, http.MethodGet, path, nil, asUser("user-1"))
	require.Equal(t, http.StatusOK, status)
	var draft dto.DraftResponse
	decodeData(t, body.Data, &draft)
	require.False(t, draft.Exists)

	status, body = srv.do(t, http.MethodPut, path, dto.DraftRequest{Code: "let a = 1;"}, asUser("user-1"))
	require.Equal(t, http.StatusOK, status)
	decodeData(t, body.Data, &draft)
	require.True(t, draft.Exists)

	status, body = srv.do(t, http.MethodGet, "/api/v1/challenges/"+challenge.ID+"/workspace", nil, asUser("user-1"))
	require.Equal(t, http.StatusOK, status)
	var workspace dto.WorkspaceResponse
	decodeData(t, body.Data, &workspace)
	require.Equal(t, "let a = 1;", workspace.Code)
	require.Equal(t, "draft", workspace.Source)

	status, _ = srv.do(t, http.MethodDelete, path, nil, asUser("user-1"))
	require.Equal(t, http.StatusOK, status)

	status, body = srv.do(t, http.MethodGet, "/api/v1/challenges/"+challenge.ID+"/workspace", nil, asUser("user-1"))
	require.Equal(t, http.StatusOK, status)
	decodeData(t, body.Data, &workspace)
	require.Equal(t, challenge.StarterCode, workspace.Code)
	require.Equal(t, "starter", workspace.Source)

	status, _ = srv.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusUnauthorized, status)
}

func TestWorkspaceFallsBackToLatestSubmission(t *testing.T) {
	srv := newTestServer(t)
	challenge := srv.seedChallenge(t, "Hello", 0, "<p>hi</p>")
	require.NoError(t, srv.db.Create(&models.Submission{UserID: "user-1", ChallengeID: challenge.ID, Code: "console.log(2)", Status: models.SubmissionStatusPassed}).Error)

	status, body := srv.do(t, http.MethodGet, "/api/v1/challenges/"+challenge.ID+"/workspace", nil, asUser("user-1"))
	require.Equal(t, http.StatusOK, status)
	var workspace dto.WorkspaceResponse
	decodeData(t, body.Data, &workspace)
	require.Equal(t, "console.log(2)", workspace.Code)
	require.Equal(t, "submission", workspace.Source)
}

func TestAutoRunPreference(t *testing.T) {
	srv := newTestServer(t)

	status, body := srv.do(t, http.MethodGet, "/api/v1/preferences/autorun", nil, asUser("user-1"))
	require.Equal(t, http.StatusOK, status)
	var pref dto.AutoRunResponse
	decodeData(t, body.Data, &pref)
	require.False(t, pref.Enabled)

	enabled := true
	status, _ = srv.do(t, http.MethodPut, "/api/v1/preferences/autorun", dto.AutoRunRequest{Enabled: &enabled}, asUser("user-1"))
	require.Equal(t, http.StatusOK, status)

	status, body = srv.do(t, http.MethodGet, "/api/v1/preferences/autorun", nil, asUser("user-1"))
	require.Equal(t, http.StatusOK, status)
	decodeData(t, body.Data, &pref)
	require.True(t, pref.Enabled)

	status, _ = srv.do(t, http.MethodPut, "/api/v1/preferences/autorun", map[string]interface{}{}, asUser("user-1"))
	require.Equal(t, http.StatusBadRequest, status)
}
