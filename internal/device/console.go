package device

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"muenzbox/internal/config"
)

// ConsoleBridge talks to a small HTTP service that holds the console
// vendor's parental-controls session and sets the daily play time limit.
type ConsoleBridge struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewConsoleBridge creates a bridge client.
func NewConsoleBridge(cfg config.ConsoleConfig, timeout time.Duration) *ConsoleBridge {
	return &ConsoleBridge{
		baseURL: strings.TrimRight(cfg.BridgeURL, "/"),
		token:   cfg.Token,
		client:  &http.Client{Timeout: timeout},
	}
}

// Unlock sets today's play time limit to minutes.
func (b *ConsoleBridge) Unlock(ctx context.Context, minutes int) error {
	if minutes <= 0 {
		return errors.New("console unlock needs a positive duration")
	}
	return b.post(ctx, "/unlock", map[string]int{"minutes": minutes})
}

// Lock sets today's play time limit to zero. A 409 means the console is
// already locked and counts as success.
func (b *ConsoleBridge) Lock(ctx context.Context) error {
	err := b.post(ctx, "/lock", struct{}{})
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Code == http.StatusConflict {
		return nil
	}
	return err
}

func (b *ConsoleBridge) post(ctx context.Context, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, nil)
}
