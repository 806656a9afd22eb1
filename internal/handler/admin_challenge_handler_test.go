package handler_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/script-playground-api/internal/dto"
)

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	srv := newTestServer(t)

	status, body := srv.do(t, http.MethodGet, "/api/admin/challenges", nil)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Empty(t, body.Data)

	status, body = srv.do(t, http.MethodGet, "/api/admin/challenges", nil, asUser("user-1"))
	require.Equal(t, http.StatusForbidden, status)
	require.Empty(t, body.Data)

	status, _ = srv.do(t, http.MethodGet, "/api/admin/challenges", nil, asAdmin("admin-1"))
	require.Equal(t, http.StatusOK, status)
}

func TestAdminChallengeCRUD(t *testing.T) {
	srv := newTestServer(t)

	status, body := srv.do(t, http.MethodPost, "/api/admin/labels", dto.LabelCreateRequest{Name: "Strings"}, asAdmin("admin-1"))
	require.Equal(t, http.StatusCreated, status)
	var label dto.LabelResponse
	decodeData(t, body.Data, &label)
	require.Regexp(t, `^#[0-9a-f]{6}$`, label.Color)

	status, _ = srv.do(t, http.MethodPost, "/api/admin/labels", dto.LabelCreateRequest{Name: "Strings"}, asAdmin("admin-1"))
	require.Equal(t, http.StatusConflict, status)

	solution := `console.log("hi")`
	status, body = srv.do(t, http.MethodPost, "/api/admin/challenges", dto.ChallengeCreateRequest{
		Title:        "Say Hi",
		Description:  "<p>Print hi</p>",
		StarterCode:  "// start\n",
		SolutionCode: &solution,
		Difficulty:   "EASY",
		LabelIDs:     []string{label.ID},
	}, asAdmin("admin-1"))
	require.Equal(t, http.StatusCreated, status)
	var created dto.AdminChallengeResponse
	decodeData(t, body.Data, &created)
	require.Equal(t, "say-hi", created.Slug)
	require.Len(t, created.Labels, 1)

	status, _ = srv.do(t, http.MethodPost, "/api/admin/challenges", dto.ChallengeCreateRequest{
		Title: "Other", Slug: "say-hi", Description: "<p>x</p>", Difficulty: "EASY",
	}, asAdmin("admin-1"))
	require.Equal(t, http.StatusConflict, status)

	status, body = srv.do(t, http.MethodPost, "/api/admin/challenges", dto.ChallengeCreateRequest{Title: "Bad"}, asAdmin("admin-1"))
	require.Equal(t, http.StatusBadRequest, status)
	require.Contains(t, string(body.Details), "difficulty")

	title := "Say Hello"
	status, body = srv.do(t, http.MethodPatch, "/api/admin/challenges/"+created.ID, dto.ChallengeUpdateRequest{Title: &title}, asAdmin("admin-1"))
	require.Equal(t, http.StatusOK, status)
	var updated dto.AdminChallengeResponse
	decodeData(t, body.Data, &updated)
	require.Equal(t, "Say Hello", updated.Title)

	// The public view never exposes the solution.
	status, body = srv.do(t, http.MethodGet, "/api/v1/challenges/say-hi", nil)
	require.Equal(t, http.StatusOK, status)
	require.NotContains(t, string(body.Data), "solution")

	status, _ = srv.do(t, http.MethodDelete, "/api/admin/challenges/"+created.ID, nil, asAdmin("admin-1"))
	require.Equal(t, http.StatusOK, status)
	status, _ = srv.do(t, http.MethodGet, "/api/admin/challenges/"+created.ID, nil, asAdmin("admin-1"))
	require.Equal(t, http.StatusNotFound, status)
}

func TestAdminReorderAndMove(t *testing.T) {
	srv := newTestServer(t)
	a := srv.seedChallenge(t, "A", 0, "a")
	b := srv.seedChallenge(t, "B", 1, "b")
	c := srv.seedChallenge(t, "C", 2, "c")

	status, body := srv.do(t, http.MethodPut, "/api/admin/challenges/order", dto.ReorderRequest{IDs: []string{c.ID, b.ID, a.ID}}, asAdmin("admin-1"))
	require.Equal(t, http.StatusOK, status)
	var items []dto.AdminChallengeResponse
	decodeData(t, body.Data, &items)
	require.Equal(t, []string{c.ID, b.ID, a.ID}, []string{items[0].ID, items[1].ID, items[2].ID})

	status, body = srv.do(t, http.MethodPut, "/api/admin/challenges/order", dto.ReorderRequest{Items: []dto.OrderItem{
		{ID: a.ID, Order: 0},
		{ID: b.ID, Order: 5},
		{ID: c.ID, Order: 1},
	}}, asAdmin("admin-1"))
	require.Equal(t, http.StatusUnprocessableEntity, status)
	var persisted []dto.AdminChallengeResponse
	decodeData(t, body.Details, &persisted)
	require.Equal(t, c.ID, persisted[0].ID)

	from, to := 2, 0
	status, body = srv.do(t, http.MethodPost, "/api/admin/challenges/order/move", dto.MoveRequest{From: &from, To: &to}, asAdmin("admin-1"))
	require.Equal(t, http.StatusOK, status)
	decodeData(t, body.Data, &items)
	require.Equal(t, []string{a.ID, c.ID, b.ID}, []string{items[0].ID, items[1].ID, items[2].ID})

	status, _ = srv.do(t, http.MethodPost, "/api/admin/challenges/order/move", map[string]int{"from": 0}, asAdmin("admin-1"))
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = srv.do(t, http.MethodGet, "/api/v1/challenges", nil)
	require.Equal(t, http.StatusOK, status)
}
