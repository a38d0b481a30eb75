package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const (
	fetchTimeout = 30 * time.Second
	userAgent    = "Mozilla/5.0 (compatible; nexhire/1.0)"
)

var (
	// ErrInvalidURL is returned for anything but absolute http(s) URLs.
	ErrInvalidURL = errors.New("invalid job posting url")
	// ErrForbiddenAddress is returned when a posting resolves to a
	// loopback, private, link-local or otherwise non-public address.
	ErrForbiddenAddress = errors.New("job posting address is not public")
)

// sharedAddressSpace is the carrier-grade NAT range, RFC 6598.
var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

// jobSelectors locate the posting body on common job boards, most specific first.
var jobSelectors = []string{
	".job-description",
	"#job-description",
	".job-content",
	".posting-content",
	".job-details",
	"[data-testid='job-description']",
	"[data-qa='vacancy-description']",
	"main",
	"article",
}

// Fetcher downloads job postings.
type Fetcher struct {
	Client *http.Client
}

// NewFetcher creates a Fetcher with a bounded timeout that only connects to
// public addresses. The check runs on every dial, redirects included, and
// proxies are disabled so it sees the real destination.
func NewFetcher() *Fetcher {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   refusePrivate,
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext

	return &Fetcher{Client: &http.Client{Timeout: fetchTimeout, Transport: transport}}
}

// refusePrivate is a net.Dialer Control hook; address is the resolved ip:port.
func refusePrivate(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrForbiddenAddress, address)
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrForbiddenAddress, host)
	}
	if !isPublic(ip) {
		return fmt.Errorf("%w: %s", ErrForbiddenAddress, ip)
	}
	return nil
}

func isPublic(ip netip.Addr) bool {
	ip = ip.Unmap()
	switch {
	case !ip.IsValid(),
		ip.IsUnspecified(),
		ip.IsLoopback(),
		ip.IsPrivate(),
		ip.IsLinkLocalUnicast(),
		ip.IsLinkLocalMulticast(),
		ip.IsInterfaceLocalMulticast(),
		ip.IsMulticast(),
		sharedAddressSpace.Contains(ip):
		return false
	}
	return true
}

// FetchJob downloads a job posting and returns its text. HTML pages are
// reduced to the posting body, plain text is returned as is.
func (f *Fetcher) FetchJob(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", u.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: unexpected status %d", u.Host, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxSize+1))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", u.Host, err)
	}
	if len(body) > MaxSize {
		return "", ErrTooLarge
	}

	mime := DetectType("", resp.Header.Get("Content-Type"), body)
	if mime == MIMEPDF || mime == MIMEDOCX || (mime == MIMEText && !looksLikeHTML(body)) {
		return ExtractText(mime, body)
	}

	text, err := HTMLText(string(body))
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", ErrEmpty
	}
	return text, nil
}

// HTMLText strips page chrome and returns the text of the posting body, one
// non-empty line per line.
func HTMLText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find("nav, footer, header, script, style, noscript, form, .cookie-banner, .sidebar").Remove()
	doc.Find("br").Each(func(_ int, s *goquery.Selection) {
		s.ReplaceWithNodes(newline())
	})
	doc.Find("p, li, h1, h2, h3, h4, div").Each(func(_ int, s *goquery.Selection) {
		s.AppendNodes(newline())
	})

	content := doc.Find("body")
	for _, selector := range jobSelectors {
		if sel := doc.Find(selector); sel.Length() > 0 {
			content = sel.First()
			break
		}
	}

	return cleanLines(content.Text()), nil
}

func newline() *html.Node {
	return &html.Node{Type: html.TextNode, Data: "\n"}
}

func cleanLines(text string) string {
	lines := strings.Split(text, "\n")
	cleaned := lines[:0]
	for _, line := range lines {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}

func looksLikeHTML(body []byte) bool {
	head := strings.ToLower(strings.TrimSpace(string(body[:min(len(body), 512)])))
	return strings.HasPrefix(head, "<!doctype html") || strings.HasPrefix(head, "<html") || strings.Contains(head, "<body")
}
