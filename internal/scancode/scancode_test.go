package scancode

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moledger/internal/models"
)

func TestRenderSendsTextAndSize(t *testing.T) {
	var gotText, gotSize string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotText = r.URL.Query().Get("text")
		gotSize = r.URL.Query().Get("size")
		w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)
	data, err := c.Render(context.Background(), "MO-2023100001", 300)
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)
	assert.Equal(t, "MO-2023100001", gotText)
	assert.Equal(t, "300", gotSize)
}

func TestRenderNon200IsExternalServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, time.Second).Render(context.Background(), "x", 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrExternalService))
}
