package httpclient

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// TLSConfig holds TLS options for provider endpoints behind corporate
// proxies or self-hosted gateways.
type TLSConfig struct {
	InsecureSkipVerify bool   // skip certificate verification (dev/test only)
	CACertificate      []byte // PEM-encoded custom CA certificate
}

// ConfigureTLS creates an http.Transport from the given TLS options.
func ConfigureTLS(config *TLSConfig) (*http.Transport, error) {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{},
	}

	if config != nil && len(config.CACertificate) > 0 {
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(config.CACertificate) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		transport.TLSClientConfig.RootCAs = caCertPool
	}

	if config != nil && config.InsecureSkipVerify {
		transport.TLSClientConfig.InsecureSkipVerify = true
	}

	return transport, nil
}

// WithTLSConfig configures the client transport with custom TLS
// settings. A broken TLS config logs a warning and keeps the default
// transport rather than failing client construction.
func WithTLSConfig(config *TLSConfig) Option {
	return func(c *Client) {
		if config == nil {
			return
		}

		transport, err := ConfigureTLS(config)
		if err != nil {
			slog.Warn("failed to configure TLS, using default transport", "error", err)
			return
		}

		if c.client != nil {
			c.client.Transport = transport
		} else {
			c.client = &http.Client{
				Transport: transport,
				Timeout:   60 * time.Second,
			}
		}
	}
}
