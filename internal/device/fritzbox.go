package device

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coocood/freecache"
	"github.com/goccy/go-json"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/text/encoding/unicode"

	"muenzbox/internal/config"
)

const (
	emptySID       = "0000000000000000"
	sidCacheSize   = 64 * 1024
	sidCacheExpiry = 18 * 60
)

var (
	ErrLoginFailed     = errors.New("fritzbox login failed")
	ErrDeviceNotFound  = errors.New("fritzbox network device not found")
	ErrProfileNotFound = errors.New("fritzbox access profile not found")
)

// FritzBox switches a network device between two access profiles through the
// FRITZ!Box data.lua interface.
type FritzBox struct {
	defaults config.FritzBoxConfig
	client   *http.Client
	sids     *freecache.Cache
}

type fritzConn struct {
	baseURL        string
	user           string
	password       string
	allowedProfile string
	blockedProfile string
}

type sessionInfo struct {
	XMLName   xml.Name `xml:"SessionInfo"`
	SID       string   `xml:"SID"`
	Challenge string   `xml:"Challenge"`
	BlockTime int      `xml:"BlockTime"`
}

// flexString accepts JSON strings and numbers.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

type netDevice struct {
	Name string     `json:"name"`
	UID  flexString `json:"UID"`
}

type netDevResponse struct {
	Data struct {
		Active  []netDevice `json:"active"`
		Passive []netDevice `json:"passive"`
	} `json:"data"`
}

type accessProfile struct {
	ID   flexString `json:"Id"`
	Name string     `json:"Name"`
}

type profilesResponse struct {
	Data struct {
		Profiles []accessProfile `json:"profiles"`
	} `json:"data"`
}

// NewFritzBox creates the adapter. Per-device config keys host, user,
// password, allowed_profile and blocked_profile override the defaults.
func NewFritzBox(defaults config.FritzBoxConfig, timeout time.Duration) *FritzBox {
	return &FritzBox{
		defaults: defaults,
		client:   newHTTPClient(timeout),
		sids:     freecache.NewCache(sidCacheSize),
	}
}

func (f *FritzBox) conn(target Target) (fritzConn, error) {
	host := strings.TrimRight(strings.TrimSpace(configValue(target.Config, "host", f.defaults.Host)), "/")
	c := fritzConn{
		baseURL:        host,
		user:           configValue(target.Config, "user", f.defaults.User),
		password:       configValue(target.Config, "password", f.defaults.Password),
		allowedProfile: configValue(target.Config, "allowed_profile", f.defaults.AllowedProfile),
		blockedProfile: configValue(target.Config, "blocked_profile", f.defaults.BlockedProfile),
	}
	if host == "" {
		return c, errors.New("fritzbox host not configured")
	}
	if !strings.Contains(host, "://") {
		c.baseURL = "http://" + host
	}
	if c.password == "" {
		return c, errors.New("fritzbox password not configured")
	}
	if strings.TrimSpace(target.Identifier) == "" {
		return c, errors.New("device identifier is empty")
	}
	return c, nil
}

// Unlock assigns the allowed profile.
func (f *FritzBox) Unlock(ctx context.Context, target Target) error {
	c, err := f.conn(target)
	if err != nil {
		return err
	}
	return f.changeProfile(ctx, c, target.Identifier, c.allowedProfile)
}

// Lock assigns the blocked profile.
func (f *FritzBox) Lock(ctx context.Context, target Target) error {
	c, err := f.conn(target)
	if err != nil {
		return err
	}
	return f.changeProfile(ctx, c, target.Identifier, c.blockedProfile)
}

// changeProfile retries once with a fresh login when the box rejects the SID.
func (f *FritzBox) changeProfile(ctx context.Context, c fritzConn, deviceName, profileName string) error {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		var sid string
		sid, err = f.sid(ctx, c, attempt > 0)
		if err != nil {
			return err
		}

		err = f.applyProfile(ctx, c, sid, deviceName, profileName)
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.Code == http.StatusForbidden && attempt == 0 {
			f.sids.Del(f.sidKey(c))
			continue
		}
		return err
	}
	return err
}

func (f *FritzBox) applyProfile(ctx context.Context, c fritzConn, sid, deviceName, profileName string) error {
	var devices netDevResponse
	err := f.data(ctx, c, url.Values{"sid": {sid}, "page": {"netDev"}, "xhrId": {"all"}}, &devices)
	if err != nil {
		return err
	}
	uid := findDeviceUID(devices, deviceName)
	if uid == "" {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceName)
	}

	var profiles profilesResponse
	if err := f.data(ctx, c, url.Values{"sid": {sid}, "page": {"kidProfils"}}, &profiles); err != nil {
		return err
	}
	profileID := findProfileID(profiles, profileName)
	if profileID == "" {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, profileName)
	}

	return f.data(ctx, c, url.Values{
		"sid":     {sid},
		"page":    {"kids_device"},
		"xhrId":   {"all"},
		"dev":     {uid},
		"profile": {profileID},
		"apply":   {""},
	}, nil)
}

func findDeviceUID(resp netDevResponse, name string) string {
	for _, list := range [][]netDevice{resp.Data.Active, resp.Data.Passive} {
		for _, d := range list {
			if d.Name == name {
				return string(d.UID)
			}
		}
	}
	return ""
}

func findProfileID(resp profilesResponse, name string) string {
	for _, p := range resp.Data.Profiles {
		if p.Name == name {
			return string(p.ID)
		}
	}
	return ""
}

func (f *FritzBox) data(ctx context.Context, c fritzConn, form url.Values, out any) error {
	form.Set("xhr", "1")
	form.Set("lang", "de")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/data.lua", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func (f *FritzBox) sidKey(c fritzConn) []byte {
	return []byte(c.baseURL + "|" + c.user)
}

func (f *FritzBox) sid(ctx context.Context, c fritzConn, refresh bool) (string, error) {
	key := f.sidKey(c)
	if !refresh {
		if sid, err := f.sids.Get(key); err == nil {
			return string(sid), nil
		}
	}

	sid, err := f.login(ctx, c)
	if err != nil {
		return "", err
	}
	_ = f.sids.Set(key, []byte(sid), sidCacheExpiry)
	return sid, nil
}

func (f *FritzBox) login(ctx context.Context, c fritzConn) (string, error) {
	loginURL := c.baseURL + "/login_sid.lua?version=2"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loginURL, nil)
	if err != nil {
		return "", err
	}
	info, err := f.sessionInfo(req)
	if err != nil {
		return "", err
	}
	if info.SID != "" && info.SID != emptySID {
		return info.SID, nil
	}
	if info.Challenge == "" {
		return "", fmt.Errorf("%w: no challenge in response", ErrLoginFailed)
	}

	response, err := challengeResponse(info.Challenge, c.password)
	if err != nil {
		return "", err
	}

	form := url.Values{"username": {c.user}, "response": {response}}
	req, err = http.NewRequestWithContext(ctx, http.MethodPost, loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	info, err = f.sessionInfo(req)
	if err != nil {
		return "", err
	}
	if info.SID == "" || info.SID == emptySID {
		return "", fmt.Errorf("%w: invalid credentials (block time %ds)", ErrLoginFailed, info.BlockTime)
	}
	return info.SID, nil
}

func (f *FritzBox) sessionInfo(req *http.Request) (*sessionInfo, error) {
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: req.URL.Redacted(), Code: resp.StatusCode}
	}

	var info sessionInfo
	if err := xml.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to parse session info: %w", err)
	}
	return &info, nil
}

// challengeResponse answers a login challenge. "2$" challenges use
// PBKDF2-SHA256 (FRITZ!OS 7.24 and later), anything else the legacy MD5 scheme.
func challengeResponse(challenge, password string) (string, error) {
	if strings.HasPrefix(challenge, "2$") {
		return pbkdf2Response(challenge, password)
	}
	return md5Response(challenge, password)
}

func pbkdf2Response(challenge, password string) (string, error) {
	parts := strings.Split(challenge, "$")
	if len(parts) != 5 {
		return "", fmt.Errorf("%w: malformed challenge", ErrLoginFailed)
	}

	iter1, err1 := strconv.Atoi(parts[1])
	salt1, err2 := hex.DecodeString(parts[2])
	iter2, err3 := strconv.Atoi(parts[3])
	salt2, err4 := hex.DecodeString(parts[4])
	if err := errors.Join(err1, err2, err3, err4); err != nil {
		return "", fmt.Errorf("%w: malformed challenge: %v", ErrLoginFailed, err)
	}

	hash1 := pbkdf2.Key([]byte(password), salt1, iter1, sha256.Size, sha256.New)
	hash2 := pbkdf2.Key(hash1, salt2, iter2, sha256.Size, sha256.New)
	return challenge + "$" + hex.EncodeToString(hash2), nil
}

func md5Response(challenge, password string) (string, error) {
	// Characters above U+00FF are replaced by '.' before hashing.
	plain := strings.Map(func(r rune) rune {
		if r > 0xFF {
			return '.'
		}
		return r
	}, challenge+"-"+password)

	encoded, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().String(plain)
	if err != nil {
		return "", fmt.Errorf("failed to encode challenge: %w", err)
	}

	sum := md5.Sum([]byte(encoded))
	return challenge + "-" + hex.EncodeToString(sum[:]), nil
}
