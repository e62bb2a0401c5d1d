package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sephirothchang/CXVoyager-sub000/internal/auth"
	"github.com/sephirothchang/CXVoyager-sub000/internal/config"
	"github.com/sephirothchang/CXVoyager-sub000/internal/tasks"
)

func TestClient_RoundTrip(t *testing.T) {
	b := newBlocker()
	s, m := newTestServer(t, nil, b)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	c := NewClient(srv.URL)
	ctx := context.Background()

	rec, err := c.Submit(ctx, []string{"prepare", "init_cluster"}, nil)
	require.NoError(t, err)
	assert.Equal(t, tasks.StatusRunning, rec.Status)
	b.waitEntered(t)

	got, err := c.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)

	list, err := c.List(ctx, tasks.StatusRunning)
	require.NoError(t, err)
	require.Len(t, list, 1)

	ab, err := c.Abort(ctx, rec.ID, "cli")
	require.NoError(t, err)
	assert.Equal(t, tasks.StatusAborted, ab.Status)
	waitStatus(t, m, rec.ID)

	_, err = c.Abort(ctx, rec.ID, "")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "Task already finished", apiErr.Detail)

	require.NoError(t, c.Delete(ctx, rec.ID))
	_, err = c.Get(ctx, rec.ID)
	assert.True(t, IsNotFound(err))
}

func TestClient_UnknownStage(t *testing.T) {
	s, _ := newTestServer(t, nil, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	_, err := NewClient(srv.URL).Submit(context.Background(), []string{"nope"}, nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Contains(t, apiErr.Detail, "nope")
}

func TestClient_Token(t *testing.T) {
	cfg := config.Default()
	cfg.Web.JWTSecret = "k"
	s, m := newTestServer(t, cfg, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	_, err := NewClient(srv.URL).Submit(context.Background(), []string{"prepare"}, nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)

	tok, err := auth.NewSigner("k").Generate("cli", time.Minute)
	require.NoError(t, err)
	rec, err := NewClient(srv.URL, WithToken(tok)).Submit(context.Background(), []string{"prepare"}, nil)
	require.NoError(t, err)
	waitStatus(t, m, rec.ID)
}
