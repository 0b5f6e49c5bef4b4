package device

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"muenzbox/internal/config"
)

type fakeRouter struct {
	mu       sync.Mutex
	entries  []addressListEntry
	lists    int
	patches  map[string]string
	gone     map[string]bool
	user     string
	password string
}

func (r *fakeRouter) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	user, password, ok := req.BasicAuth()
	if !ok || user != r.user || password != r.password {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case req.Method == http.MethodGet && req.URL.Path == addressListPath:
		r.lists++
		// Server-side filtering is not supported by this fake
		_ = json.NewEncoder(w).Encode(r.entries)
	case req.Method == http.MethodPatch && strings.HasPrefix(req.URL.Path, addressListPath+"/"):
		id := strings.TrimPrefix(req.URL.Path, addressListPath+"/")
		if r.gone[id] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		body, _ := io.ReadAll(req.Body)
		var patch map[string]string
		_ = json.Unmarshal(body, &patch)
		r.patches[id] = patch["disabled"]
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("{}"))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newFakeRouter(t *testing.T) (*fakeRouter, string) {
	t.Helper()
	router := &fakeRouter{
		entries: []addressListEntry{
			{ID: "*1", Comment: "printer", List: "blocked"},
			{ID: "*2", Comment: "  TV-Livingroom ", List: "tv-blocked"},
			{ID: "*3", Comment: "kids tablet (old)", List: "blocked"},
		},
		patches:  map[string]string{},
		gone:     map[string]bool{},
		user:     "admin",
		password: "secret",
	}
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	// No scheme: the adapter tries HTTPS first and falls back to HTTP
	return router, strings.TrimPrefix(srv.URL, "http://")
}

func TestMikroTikUnlockAndLock(t *testing.T) {
	router, host := newFakeRouter(t)
	m := NewMikroTik(config.MikroTikConfig{Host: host, User: "admin", Password: "secret"}, 5*time.Second)
	ctx := context.Background()
	target := Target{Identifier: "tv-livingroom"}

	require.NoError(t, m.Unlock(ctx, target))
	assert.Equal(t, "true", router.patches["*2"])

	require.NoError(t, m.Lock(ctx, target))
	assert.Equal(t, "false", router.patches["*2"])

	// The entry id is cached after the first lookup
	assert.Equal(t, 1, router.lists)
}

func TestMikroTikDeviceConfigOverridesDefaults(t *testing.T) {
	router, host := newFakeRouter(t)
	m := NewMikroTik(config.MikroTikConfig{Host: "unused.invalid", User: "nobody", Password: "wrong"}, 5*time.Second)

	target := Target{
		Identifier: "kids tablet",
		Config:     map[string]string{"host": "http://" + host, "user": "admin", "password": "secret"},
	}
	require.NoError(t, m.Unlock(context.Background(), target))
	assert.Equal(t, "true", router.patches["*3"])
}

func TestMikroTikStaleCacheIsRefreshed(t *testing.T) {
	router, host := newFakeRouter(t)
	m := NewMikroTik(config.MikroTikConfig{Host: "http://" + host, User: "admin", Password: "secret"}, 5*time.Second)
	ctx := context.Background()
	target := Target{Identifier: "printer"}

	require.NoError(t, m.Lock(ctx, target))

	router.mu.Lock()
	router.gone["*1"] = true
	router.entries[0].ID = "*9"
	router.mu.Unlock()

	require.NoError(t, m.Unlock(ctx, target))
	assert.Equal(t, "true", router.patches["*9"])
}

func TestMikroTikErrors(t *testing.T) {
	_, host := newFakeRouter(t)
	ctx := context.Background()

	m := NewMikroTik(config.MikroTikConfig{Host: "http://" + host, User: "admin", Password: "secret"}, 5*time.Second)
	err := m.Unlock(ctx, Target{Identifier: "toaster"})
	assert.ErrorIs(t, err, ErrEntryNotFound)

	m = NewMikroTik(config.MikroTikConfig{Host: "http://" + host, User: "admin", Password: "wrong"}, 5*time.Second)
	err = m.Unlock(ctx, Target{Identifier: "printer"})
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.Code)

	m = NewMikroTik(config.MikroTikConfig{}, 5*time.Second)
	assert.Error(t, m.Unlock(ctx, Target{Identifier: "printer"}))

	m = NewMikroTik(config.MikroTikConfig{Host: host, User: "admin"}, 5*time.Second)
	assert.Error(t, m.Unlock(ctx, Target{Identifier: "printer"}))
}

func TestFindEntryID(t *testing.T) {
	entries := []addressListEntry{
		{ID: "*1", Comment: "tv-kitchen-old"},
		{ID: "*2", Comment: "TV-Kitchen"},
		{ID: "*3", Comment: ""},
	}

	tests := []struct {
		identifier string
		want       string
	}{
		{"tv-kitchen", "*2"},
		{"  TV-KITCHEN ", "*2"},
		{"kitchen-old", "*1"},
		{"my tv-kitchen-old box", "*1"},
		{"bedroom", ""},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, findEntryID(entries, tt.identifier), "identifier %q", tt.identifier)
	}
}

func TestBaseURLs(t *testing.T) {
	assert.Equal(t, []string{"https://10.0.0.1", "http://10.0.0.1"}, baseURLs("10.0.0.1/"))
	assert.Equal(t, []string{"http://10.0.0.1:8080"}, baseURLs("http://10.0.0.1:8080"))
}
