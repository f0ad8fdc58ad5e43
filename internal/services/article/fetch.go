// Package article downloads web pages and extracts readable article
// metadata and text from them.
package article

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"
)

const (
	defaultTimeout = 30 * time.Second
	maxRedirects   = 5
	// MaxBodySize caps how much of a response is read.
	MaxBodySize = 10 << 20
)

// ErrBlockedHost is returned for loopback, private, link-local and cloud
// metadata targets.
var ErrBlockedHost = errors.New("blocked host")

// Fetcher downloads remote content with SSRF guards.
type Fetcher struct {
	client       *http.Client
	allowPrivate bool
	userAgent    string
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient overrides the HTTP client. Redirect checks are still
// installed on a copy. A client with a nil Transport gets the guarded
// dialer; a custom Transport is used as given.
func WithHTTPClient(hc *http.Client) Option {
	return func(f *Fetcher) {
		if hc != nil {
			cp := *hc
			f.client = &cp
		}
	}
}

// WithAllowLoopback disables the host guard. Only tests should use it.
func WithAllowLoopback() Option {
	return func(f *Fetcher) { f.allowPrivate = true }
}

// NewFetcher returns a Fetcher.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:    &http.Client{Timeout: defaultTimeout},
		userAgent: "gleaner/1.0 (+https://github.com/starford/gleaner)",
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.client.Transport == nil {
		f.client.Transport = f.guardedTransport()
	}
	f.client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("too many redirects (max %d)", maxRedirects)
		}
		return f.checkHost(req.URL.Hostname())
	}
	return f
}

// Download fetches rawURL and returns its body and content type.
func (f *Fetcher) Download(ctx context.Context, rawURL string) ([]byte, string, error) {
	resp, err := f.get(ctx, rawURL)
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize+1))
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	if len(data) > MaxBodySize {
		return nil, "", fmt.Errorf("body exceeds %d bytes", MaxBodySize)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) (*http.Response, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	if err := f.checkHost(parsed.Hostname()); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", parsed.Host, err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: HTTP %d", parsed.Host, resp.StatusCode)
	}
	return resp, nil
}

// guardedTransport dials through dialControl so that every connection,
// including ones to names that resolve differently after checkHost, is
// checked against the address actually dialed. Proxies are not used since
// the dial would then target the proxy.
func (f *Fetcher) guardedTransport() *http.Transport {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.Proxy = nil
	dialer := &net.Dialer{
		Timeout:   defaultTimeout,
		KeepAlive: 30 * time.Second,
		Control:   f.dialControl,
	}
	tr.DialContext = dialer.DialContext
	return tr
}

func (f *Fetcher) dialControl(_, address string, _ syscall.RawConn) error {
	if f.allowPrivate {
		return nil
	}
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		host = address
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return fmt.Errorf("%w: unresolved dial address %s", ErrBlockedHost, address)
	}
	if reason := blockedIP(ip); reason != "" {
		return fmt.Errorf("%w: %s address %s", ErrBlockedHost, reason, host)
	}
	return nil
}

// checkHost rejects hosts that are, or resolve to, a blocked address. Every
// resolved address is checked.
func (f *Fetcher) checkHost(host string) error {
	if f.allowPrivate {
		return nil
	}
	if strings.EqualFold(strings.TrimSuffix(host, "."), "metadata.google.internal") {
		return fmt.Errorf("%w: %s", ErrBlockedHost, host)
	}
	ips := []net.IP{net.ParseIP(host)}
	if ips[0] == nil {
		resolved, err := net.LookupIP(host)
		if err != nil || len(resolved) == 0 {
			return nil //nolint:nilerr // the HTTP client reports DNS failures
		}
		ips = resolved
	}
	for _, ip := range ips {
		if reason := blockedIP(ip); reason != "" {
			return fmt.Errorf("%w: %s address %s", ErrBlockedHost, reason, host)
		}
	}
	return nil
}

var sharedAddressSpace = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

// blockedIP names why ip may not be fetched, or returns "" when it may.
func blockedIP(ip net.IP) string {
	switch {
	case ip.Equal(net.IPv4(169, 254, 169, 254)):
		return "cloud metadata"
	case ip.IsLoopback():
		return "loopback"
	case ip.IsUnspecified():
		return "unspecified"
	case ip.IsPrivate():
		return "private"
	case ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast(), ip.IsInterfaceLocalMulticast():
		return "link-local"
	case ip.IsMulticast():
		return "multicast"
	case sharedAddressSpace.Contains(ip):
		return "shared address space"
	}
	return ""
}

func isHTML(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	return ct == "" || ct == "text/html" || ct == "application/xhtml+xml"
}
