package userclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExistsByID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/internal/users/1":
			w.WriteHeader(http.StatusOK)
		case "/internal/users/2":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL+"/", zerolog.Nop())

	exists, err := client.ExistsByID(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = client.ExistsByID(context.Background(), 2)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = client.ExistsByID(context.Background(), 3)
	assert.Error(t, err)
}
