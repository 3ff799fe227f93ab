// Package transport builds the HTTP client used for platform and remote
// adapter calls.
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

// Fingerprint names the TLS ClientHello outbound connections present.
// Some storefront CDNs throttle Go's default hello.
type Fingerprint string

const (
	FingerprintChrome  Fingerprint = "chrome"
	FingerprintFirefox Fingerprint = "firefox"
	FingerprintSafari  Fingerprint = "safari"
	// FingerprintNone uses crypto/tls unchanged.
	FingerprintNone Fingerprint = "none"
)

// ParseFingerprint accepts the TLS_FINGERPRINT values. Empty means chrome.
func ParseFingerprint(s string) (Fingerprint, error) {
	switch f := Fingerprint(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FingerprintChrome, nil
	case FingerprintChrome, FingerprintFirefox, FingerprintSafari, FingerprintNone:
		return f, nil
	default:
		return "", fmt.Errorf("unknown TLS fingerprint %q (want chrome, firefox, safari or none)", s)
	}
}

func (f Fingerprint) helloID() utls.ClientHelloID {
	switch f {
	case FingerprintFirefox:
		return utls.HelloFirefox_Auto
	case FingerprintSafari:
		return utls.HelloSafari_Auto
	default:
		return utls.HelloChrome_Auto
	}
}

// Options configures NewClient.
type Options struct {
	// Timeout bounds a whole request, dial included.
	Timeout     time.Duration
	Fingerprint Fingerprint
	// RootCAs overrides the system roots, for private adapter endpoints.
	RootCAs *x509.CertPool
}

// NewClient returns an http.Client whose TLS handshakes present opts'
// fingerprint.
func NewClient(opts Options) *http.Client {
	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: NewTransport(opts),
	}
}

// NewTransport returns the round tripper behind NewClient. TLS requests
// try HTTP/2 first and fall back to HTTP/1.1; plain HTTP goes straight to
// HTTP/1.1.
func NewTransport(opts Options) http.RoundTripper {
	dialTimeout := opts.Timeout
	if dialTimeout <= 0 {
		dialTimeout = 30 * time.Second
	}
	dialer := &net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}

	if opts.Fingerprint == FingerprintNone {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.DialContext = dialer.DialContext
		if opts.RootCAs != nil {
			t.TLSClientConfig = &tls.Config{RootCAs: opts.RootCAs}
		}
		return t
	}

	d := &helloDialer{dialer: dialer, hello: opts.Fingerprint.helloID(), roots: opts.RootCAs}
	return &fingerprintTransport{
		h2: &http2.Transport{
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				return d.dial(ctx, network, addr)
			},
		},
		h1: &http.Transport{
			DialContext:         dialer.DialContext,
			DialTLSContext:      d.dial,
			MaxIdleConnsPerHost: 8,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

type fingerprintTransport struct {
	h2 *http2.Transport
	h1 *http.Transport
}

func (t *fingerprintTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return t.h1.RoundTrip(req)
	}

	resp, err := t.h2.RoundTrip(req)
	if err == nil {
		return resp, nil
	}
	if req.Context().Err() != nil {
		return nil, err
	}

	// The body may have been consumed by the failed HTTP/2 attempt.
	retry := req.Clone(req.Context())
	if req.Body != nil && req.Body != http.NoBody {
		if req.GetBody == nil {
			return nil, fmt.Errorf("http2 failed and body cannot be replayed: %w", err)
		}
		body, berr := req.GetBody()
		if berr != nil {
			return nil, berr
		}
		retry.Body = body
	}
	return t.h1.RoundTrip(retry)
}

// CloseIdleConnections lets http.Client.CloseIdleConnections reach both
// transports.
func (t *fingerprintTransport) CloseIdleConnections() {
	t.h2.CloseIdleConnections()
	t.h1.CloseIdleConnections()
}

type helloDialer struct {
	dialer *net.Dialer
	hello  utls.ClientHelloID
	roots  *x509.CertPool
}

func (d *helloDialer) dial(ctx context.Context, network, addr string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	conn, err := d.dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	tlsConn := utls.UClient(conn, &utls.Config{ServerName: host, RootCAs: d.roots}, d.hello)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tls handshake with %s: %w", host, err)
	}
	return tlsConn, nil
}
