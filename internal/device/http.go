package device

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"time"
)

// StatusError is returned when a device answers with a non-2xx status.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned HTTP %d", e.URL, e.Code)
}

// newHTTPClient returns a client for LAN appliances. Routers ship with
// self-signed certificates, so verification is off.
func newHTTPClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	return &http.Client{Timeout: timeout, Transport: transport}
}

func configValue(cfg map[string]string, key, fallback string) string {
	if v := cfg[key]; v != "" {
		return v
	}
	return fallback
}
