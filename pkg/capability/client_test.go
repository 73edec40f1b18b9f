package capability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Redesign(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var in RedesignRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "gs://bucket/room.png", in.ImageURI)
		assert.Equal(t, "scandinavian", in.StylePrompt)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"description":"bright room","image_uri":"gs://bucket/out.png"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	out, err := c.Redesign(context.Background(), RedesignRequest{ImageURI: "gs://bucket/room.png", StylePrompt: "scandinavian"})
	require.NoError(t, err)
	assert.Equal(t, "bright room", out.Description)
	assert.Equal(t, "gs://bucket/out.png", out.ImageURI)
}

func TestClient_RedesignUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"unsupported image"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Redesign(context.Background(), RedesignRequest{ImageURI: "x"})
	var upErr *UpstreamError
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, http.StatusUnprocessableEntity, upErr.StatusCode)
	assert.Equal(t, "unsupported image", upErr.Message)
}

func TestClient_RedesignTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, 50*time.Millisecond).Redesign(context.Background(), RedesignRequest{ImageURI: "x"})
	require.Error(t, err)
	var upErr *UpstreamError
	assert.False(t, errors.As(err, &upErr))
}

func TestClient_NotConfigured(t *testing.T) {
	c := NewClient("", 0)
	assert.False(t, c.Configured())

	_, err := c.Redesign(context.Background(), RedesignRequest{ImageURI: "x"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}
