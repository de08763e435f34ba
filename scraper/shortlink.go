package scraper

import (
	"context"
	"crypto/x509"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	tls2 "github.com/refraction-networking/utls"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// maxRedirectHops bounds shortlink chains.
const maxRedirectHops = 5

// ShortlinkResolver follows shortlink redirects with a Chrome TLS
// fingerprint without loading the target.
type ShortlinkResolver struct {
	client *http.Client
}

// defaultShortlinkTimeout bounds a whole resolution when none is configured.
const defaultShortlinkTimeout = 10 * time.Second

// NewShortlinkResolver builds a resolver; proxy may be empty. timeout
// bounds each request, falling back to 10s when not positive.
func NewShortlinkResolver(proxy string, timeout time.Duration) *ShortlinkResolver {
	if timeout <= 0 {
		timeout = defaultShortlinkTimeout
	}
	return newShortlinkResolver(&http.Client{
		Transport: newChromeTransport(proxy, nil),
		Timeout:   timeout,
	})
}

// newChromeTransport returns an HTTP/1.1 transport dialing TLS with a
// Chrome fingerprint. rootCAs nil means the system pool.
func newChromeTransport(proxy string, rootCAs *x509.CertPool) *http.Transport {
	d := chromeDialer{rootCAs: rootCAs}
	transport := &http.Transport{
		DialTLSContext:      d.DialTLSContext,
		ForceAttemptHTTP2:   false,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	if proxy != "" {
		if proxyURL, err := url.Parse(proxy); err == nil && (proxyURL.Scheme == "http" || proxyURL.Scheme == "https") {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}
	return transport
}

func newShortlinkResolver(client *http.Client) *ShortlinkResolver {
	c := *client
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &ShortlinkResolver{client: &c}
}

// Resolve returns the final target of rawURL, following at most
// maxRedirectHops Location headers. A URL that does not redirect resolves
// to itself.
func (r *ShortlinkResolver) Resolve(ctx context.Context, rawURL string) (string, error) {
	current := rawURL
	for hop := 0; hop < maxRedirectHops; hop++ {
		next, err := r.hop(ctx, current)
		if err != nil {
			return "", err
		}
		if next == "" {
			return current, nil
		}
		current = next
	}
	return current, nil
}

// hop issues one HEAD and returns the absolute redirect target, or "".
func (r *ShortlinkResolver) hop(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return "", fmt.Errorf("shortlink: build request: %w", err)
	}
	req.Header.Set("User-Agent", chromeUA)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("shortlink: request failed: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode < 300 || resp.StatusCode >= 400 {
		if resp.StatusCode >= 400 {
			return "", fmt.Errorf("shortlink: HTTP %d for %s", resp.StatusCode, target)
		}
		return "", nil
	}
	loc, err := resp.Location()
	if err != nil {
		return "", fmt.Errorf("shortlink: redirect without location: %w", err)
	}
	return loc.String(), nil
}

// chromeH1Spec returns a Chrome ClientHello with ALPN limited to
// http/1.1. http.Transport cannot speak HTTP/2 over a custom TLS dial, so
// offering h2 makes h2 servers answer a protocol the client never sends.
func chromeH1Spec() (*tls2.ClientHelloSpec, error) {
	spec, err := tls2.UTLSIdToSpec(tls2.HelloChrome_Auto)
	if err != nil {
		return nil, err
	}
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls2.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	return &spec, nil
}

// chromeDialer establishes TLS connections with a Chrome fingerprint via utls.
type chromeDialer struct {
	rootCAs *x509.CertPool
}

func (d chromeDialer) DialTLSContext(ctx context.Context, network, addr string) (net.Conn, error) {
	spec, err := chromeH1Spec()
	if err != nil {
		return nil, fmt.Errorf("shortlink: build tls spec: %w", err)
	}

	dialer := &net.Dialer{Timeout: 10 * time.Second}
	rawConn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	host, _, _ := net.SplitHostPort(addr)
	tlsConn := tls2.UClient(rawConn, &tls2.Config{ServerName: host, RootCAs: d.rootCAs}, tls2.HelloCustom)
	if err := tlsConn.ApplyPreset(spec); err != nil {
		rawConn.Close()
		return nil, fmt.Errorf("shortlink: apply tls spec: %w", err)
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return nil, err
	}
	return tlsConn, nil
}
