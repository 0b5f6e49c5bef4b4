package device

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"muenzbox/internal/config"
)

func TestChallengeResponse(t *testing.T) {
	tests := []struct {
		name      string
		challenge string
		password  string
		want      string
	}{
		{
			name:      "md5",
			challenge: "1234567z",
			password:  "äbc",
			want:      "1234567z-9e224a41eeefa284df7bb0f26c2913e2",
		},
		{
			name:      "pbkdf2",
			challenge: "2$10000$5A1711$2000$5A1722",
			password:  "1example!",
			want:      "2$10000$5A1711$2000$5A1722$1798a1672bca7c6463d6b245f82b53703b0f50813401b03e4045a5861e689adb",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := challengeResponse(tt.challenge, tt.password)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChallengeResponseMalformed(t *testing.T) {
	_, err := challengeResponse("2$abc$zz", "pw")
	assert.ErrorIs(t, err, ErrLoginFailed)
}

type fakeFritzBox struct {
	mu          sync.Mutex
	logins      int
	validSID    string
	rejectOnce  bool
	assignments map[string]string
}

func (f *fakeFritzBox) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.URL.Path {
	case "/login_sid.lua":
		if r.Method == http.MethodGet {
			fmt.Fprint(w, `<SessionInfo><SID>0000000000000000</SID><Challenge>2$1000$AABB$100$CCDD</Challenge><BlockTime>0</BlockTime></SessionInfo>`)
			return
		}
		_ = r.ParseForm()
		want, _ := pbkdf2Response("2$1000$AABB$100$CCDD", "boxpass")
		if r.PostForm.Get("response") != want || r.PostForm.Get("username") != "parent" {
			fmt.Fprint(w, `<SessionInfo><SID>0000000000000000</SID><Challenge>x</Challenge><BlockTime>8</BlockTime></SessionInfo>`)
			return
		}
		f.logins++
		f.validSID = fmt.Sprintf("%016d", f.logins)
		fmt.Fprintf(w, `<SessionInfo><SID>%s</SID><Challenge></Challenge><BlockTime>0</BlockTime></SessionInfo>`, f.validSID)
	case "/data.lua":
		_ = r.ParseForm()
		if r.PostForm.Get("sid") != f.validSID || f.rejectOnce {
			f.rejectOnce = false
			w.WriteHeader(http.StatusForbidden)
			return
		}
		switch r.PostForm.Get("page") {
		case "netDev":
			fmt.Fprint(w, `{"data":{"active":[{"name":"Fernseher","UID":"landevice1"}],"passive":[{"name":"Tablet","UID":"landevice2"}]}}`)
		case "kidProfils":
			fmt.Fprint(w, `{"data":{"profiles":[{"Id":"filtprof1","Name":"Standard"},{"Id":3,"Name":"Gesperrt"}]}}`)
		case "kids_device":
			f.assignments[r.PostForm.Get("dev")] = r.PostForm.Get("profile")
			fmt.Fprint(w, `{"data":{}}`)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newFakeFritzBox(t *testing.T) (*fakeFritzBox, *FritzBox) {
	t.Helper()
	box := &fakeFritzBox{assignments: map[string]string{}}
	srv := httptest.NewServer(box)
	t.Cleanup(srv.Close)

	f := NewFritzBox(config.FritzBoxConfig{
		Host:           srv.URL,
		User:           "parent",
		Password:       "boxpass",
		AllowedProfile: "Standard",
		BlockedProfile: "Gesperrt",
	}, 5*time.Second)
	return box, f
}

func TestFritzBoxUnlockAndLock(t *testing.T) {
	box, f := newFakeFritzBox(t)
	ctx := context.Background()

	require.NoError(t, f.Unlock(ctx, Target{Identifier: "Fernseher"}))
	assert.Equal(t, "filtprof1", box.assignments["landevice1"])

	require.NoError(t, f.Lock(ctx, Target{Identifier: "Tablet"}))
	assert.Equal(t, "3", box.assignments["landevice2"])

	// SID is reused from the cache
	assert.Equal(t, 1, box.logins)
}

func TestFritzBoxRetriesOnForbidden(t *testing.T) {
	box, f := newFakeFritzBox(t)
	ctx := context.Background()

	require.NoError(t, f.Unlock(ctx, Target{Identifier: "Fernseher"}))
	box.mu.Lock()
	box.rejectOnce = true
	box.mu.Unlock()

	require.NoError(t, f.Lock(ctx, Target{Identifier: "Fernseher"}))
	assert.Equal(t, 2, box.logins)
	assert.Equal(t, "3", box.assignments["landevice1"])
}

func TestFritzBoxErrors(t *testing.T) {
	_, f := newFakeFritzBox(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.Unlock(ctx, Target{Identifier: "Toaster"}), ErrDeviceNotFound)

	err := f.Unlock(ctx, Target{Identifier: "Fernseher", Config: map[string]string{"allowed_profile": "Unbegrenzt"}})
	assert.ErrorIs(t, err, ErrProfileNotFound)

	err = f.Unlock(ctx, Target{Identifier: "Fernseher", Config: map[string]string{"password": "wrong", "user": "intruder"}})
	assert.ErrorIs(t, err, ErrLoginFailed)

	noPassword := NewFritzBox(config.FritzBoxConfig{Host: "fritz.box"}, time.Second)
	assert.Error(t, noPassword.Unlock(ctx, Target{Identifier: "Fernseher"}))
}
