package device

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"muenzbox/internal/config"
)

func TestConsoleBridge(t *testing.T) {
	var lastMinutes int
	lockStatus := http.StatusOK

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer bridge-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/unlock":
			var body struct {
				Minutes int `json:"minutes"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			lastMinutes = body.Minutes
			w.WriteHeader(http.StatusOK)
		case "/lock":
			w.WriteHeader(lockStatus)
		}
	}))
	defer srv.Close()

	b := NewConsoleBridge(config.ConsoleConfig{BridgeURL: srv.URL + "/", Token: "bridge-token"}, 5*time.Second)
	ctx := context.Background()

	require.NoError(t, b.Unlock(ctx, 60))
	assert.Equal(t, 60, lastMinutes)
	assert.Error(t, b.Unlock(ctx, 0))

	require.NoError(t, b.Lock(ctx))

	lockStatus = http.StatusConflict
	assert.NoError(t, b.Lock(ctx), "already locked counts as success")

	lockStatus = http.StatusBadGateway
	assert.Error(t, b.Lock(ctx))
}
