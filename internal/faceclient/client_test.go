package faceclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"campusattend/internal/apperr"
)

func TestMatchPostsMultipartImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/recognize", r.URL.Path)
		file, _, err := r.FormFile("image")
		require.NoError(t, err)
		data, _ := io.ReadAll(file)
		require.Equal(t, []byte("jpeg-bytes"), data)
		require.Equal(t, "23IT56", r.FormValue("student_id"))
		_ = json.NewEncoder(w).Encode(MatchResult{Matched: true, StudentID: "23IT56", Confidence: 0.82})
	}))
	defer srv.Close()

	c := New(srv.URL, false, time.Second)
	res, err := c.Match(context.Background(), []byte("jpeg-bytes"), "", "23IT56")
	require.NoError(t, err)
	require.True(t, res.Matched)
	require.Equal(t, 0.82, res.Confidence)
}

func TestMatchMapsFailuresToNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	c := New(srv.URL, false, time.Second)
	_, err := c.Match(context.Background(), []byte("x"), "f.jpg", "")
	require.ErrorIs(t, err, apperr.ErrNetwork)

	srv.Close()
	_, err = c.Match(context.Background(), []byte("x"), "f.jpg", "")
	require.ErrorIs(t, err, apperr.ErrNetwork)
}

func TestMatchTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := New(srv.URL, false, 50*time.Millisecond)
	_, err := c.Match(context.Background(), []byte("x"), "f.jpg", "")
	require.ErrorIs(t, err, apperr.ErrNetwork)
}

func TestSkipModeEchoesClaim(t *testing.T) {
	c := New("http://unused", true, 0)
	res, err := c.Match(context.Background(), nil, "", "23IT63")
	require.NoError(t, err)
	require.Equal(t, "23IT63", res.StudentID)
	require.NoError(t, c.Health(context.Background()))
}
