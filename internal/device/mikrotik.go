package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coocood/freecache"
	"github.com/goccy/go-json"

	"muenzbox/internal/config"
)

const (
	addressListPath  = "/rest/ip/firewall/address-list"
	entryCacheSize   = 256 * 1024
	entryCacheExpiry = 3600
)

// ErrEntryNotFound means no address-list entry matches the device identifier.
var ErrEntryNotFound = errors.New("address-list entry not found")

// MikroTik toggles a firewall address-list entry through the RouterOS v7 REST
// API. The entry blocks the device while enabled, so unlocking disables it.
type MikroTik struct {
	defaults config.MikroTikConfig
	client   *http.Client
	entries  *freecache.Cache
}

type addressListEntry struct {
	ID       string `json:".id"`
	Comment  string `json:"comment"`
	List     string `json:"list"`
	Address  string `json:"address"`
	Disabled string `json:"disabled"`
}

type mikrotikConn struct {
	host     string
	user     string
	password string
}

// NewMikroTik creates the adapter. Per-device config keys host, user and
// password override the defaults.
func NewMikroTik(defaults config.MikroTikConfig, timeout time.Duration) *MikroTik {
	return &MikroTik{
		defaults: defaults,
		client:   newHTTPClient(timeout),
		entries:  freecache.NewCache(entryCacheSize),
	}
}

func (m *MikroTik) conn(target Target) (mikrotikConn, error) {
	c := mikrotikConn{
		host:     strings.TrimSpace(configValue(target.Config, "host", m.defaults.Host)),
		user:     strings.TrimSpace(configValue(target.Config, "user", m.defaults.User)),
		password: configValue(target.Config, "password", m.defaults.Password),
	}
	if c.host == "" {
		return c, errors.New("mikrotik host not configured")
	}
	if c.user == "" || c.password == "" {
		return c, errors.New("mikrotik credentials incomplete")
	}
	if strings.TrimSpace(target.Identifier) == "" {
		return c, errors.New("device identifier is empty")
	}
	return c, nil
}

// Unlock disables the blocking address-list entry.
func (m *MikroTik) Unlock(ctx context.Context, target Target) error {
	return m.setDisabled(ctx, target, true)
}

// Lock enables the blocking address-list entry.
func (m *MikroTik) Lock(ctx context.Context, target Target) error {
	return m.setDisabled(ctx, target, false)
}

func (m *MikroTik) setDisabled(ctx context.Context, target Target, disabled bool) error {
	c, err := m.conn(target)
	if err != nil {
		return err
	}

	body := map[string]string{"disabled": fmt.Sprintf("%t", disabled)}

	// A cached id can go stale when the entry is recreated on the router.
	for attempt := 0; attempt < 2; attempt++ {
		id, err := m.entryID(ctx, c, target.Identifier)
		if err != nil {
			return err
		}

		err = m.request(ctx, c, http.MethodPatch, addressListPath+"/"+url.PathEscape(id), body, nil)
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound && attempt == 0 {
			m.entries.Del(m.cacheKey(c, target.Identifier))
			continue
		}
		return err
	}
	return nil
}

func (m *MikroTik) cacheKey(c mikrotikConn, identifier string) []byte {
	return []byte(c.host + ":" + identifier)
}

func (m *MikroTik) entryID(ctx context.Context, c mikrotikConn, identifier string) (string, error) {
	key := m.cacheKey(c, identifier)
	if id, err := m.entries.Get(key); err == nil {
		return string(id), nil
	}

	var entries []addressListEntry
	query := addressListPath + "?comment=" + url.QueryEscape(identifier)
	if err := m.request(ctx, c, http.MethodGet, query, nil, &entries); err != nil {
		return "", fmt.Errorf("failed to load address list: %w", err)
	}
	id := findEntryID(entries, identifier)

	if id == "" {
		entries = nil
		if err := m.request(ctx, c, http.MethodGet, addressListPath, nil, &entries); err != nil {
			return "", fmt.Errorf("failed to load address list: %w", err)
		}
		id = findEntryID(entries, identifier)
	}

	if id == "" {
		return "", fmt.Errorf("%w: %s", ErrEntryNotFound, identifier)
	}

	_ = m.entries.Set(key, []byte(id), entryCacheExpiry)
	return id, nil
}

// findEntryID prefers an exact case-insensitive comment match and falls back
// to a comment that contains the identifier or is contained in it.
func findEntryID(entries []addressListEntry, identifier string) string {
	ident := normalize(identifier)
	if ident == "" {
		return ""
	}

	for _, e := range entries {
		if normalize(e.Comment) == ident {
			return e.ID
		}
	}

	for _, e := range entries {
		comment := normalize(e.Comment)
		if comment != "" && (strings.Contains(comment, ident) || strings.Contains(ident, comment)) {
			return e.ID
		}
	}
	return ""
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// baseURLs honours an explicit scheme, otherwise tries HTTPS then HTTP.
func baseURLs(host string) []string {
	host = strings.TrimRight(host, "/")
	if strings.Contains(host, "://") {
		return []string{host}
	}
	return []string{"https://" + host, "http://" + host}
}

func (m *MikroTik) request(ctx context.Context, c mikrotikConn, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return err
		}
	}

	var lastErr error
	for _, base := range baseURLs(c.host) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, base+path, reader)
		if err != nil {
			return err
		}
		req.SetBasicAuth(c.user, c.password)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := m.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			continue
		}

		err = decodeResponse(resp, out)
		resp.Body.Close()
		return err
	}

	return fmt.Errorf("no connection to %s: %w", c.host, lastErr)
}

func decodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &StatusError{URL: resp.Request.URL.Redacted(), Code: resp.StatusCode}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
