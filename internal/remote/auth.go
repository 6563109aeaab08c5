package remote

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/dyluth/mosaic/internal/clock"
	"github.com/dyluth/mosaic/internal/ledger"
	"github.com/dyluth/mosaic/internal/worker"
	"github.com/sugawarayuuta/sonnet"
	"golang.org/x/net/html"
)

// Authenticator logs an identity in through the web login form and reads the
// access token from the session page.
type Authenticator struct {
	pool       *ProxyPool
	endpoints  Endpoints
	clock      clock.Clock
	retryDelay time.Duration
	timeout    time.Duration
}

// NewAuthenticator creates an Authenticator. A nil clk uses the wall clock.
func NewAuthenticator(pool *ProxyPool, endpoints Endpoints, clk clock.Clock, retryDelay time.Duration) *Authenticator {
	if clk == nil {
		clk = clock.Real{}
	}
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	return &Authenticator{
		pool:       pool,
		endpoints:  endpoints.WithDefaults(),
		clock:      clk,
		retryDelay: retryDelay,
		timeout:    30 * time.Second,
	}
}

type sessionData struct {
	User struct {
		Session *struct {
			AccessToken string      `json:"accessToken"`
			ExpiresIn   float64     `json:"expiresIn"`
			Error       interface{} `json:"error"`
		} `json:"session"`
	} `json:"user"`
}

// Authenticate logs id in and returns a token expiring ExpiresIn seconds after now.
// Network failures are retried until ctx is done; a rejected login returns
// ErrAuthFailed and an unreadable session page ErrSessionMalformed.
func (a *Authenticator) Authenticate(ctx context.Context, id worker.Identity, now time.Time) (ledger.Token, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return ledger.Token{}, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	client := &http.Client{Transport: a.pool.Transport(), Jar: jar, Timeout: a.timeout}

	err = Retry(ctx, a.clock, a.retryDelay, "log in", func(ctx context.Context) error {
		return a.login(ctx, client, id)
	})
	if err != nil {
		return ledger.Token{}, err
	}
	log.Printf("[INFO] worker='%s' Authorization successful", id.Username)

	var page []byte
	err = Retry(ctx, a.clock, a.retryDelay, "fetch session", func(ctx context.Context) error {
		body, status, err := a.do(ctx, client, http.MethodGet, a.endpoints.Session, nil)
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return fmt.Errorf("session page returned status %d", status)
		}
		page = body
		return nil
	})
	if err != nil {
		return ledger.Token{}, err
	}

	return parseSession(page, now)
}

func (a *Authenticator) login(ctx context.Context, client *http.Client, id worker.Identity) error {
	if _, _, err := a.do(ctx, client, http.MethodGet, a.endpoints.Home, nil); err != nil {
		return err
	}

	body, _, err := a.do(ctx, client, http.MethodGet, a.endpoints.Login, nil)
	if err != nil {
		return err
	}
	csrf, err := findCSRFToken(body)
	if err != nil {
		return err
	}

	form := url.Values{
		"username":   {id.Username},
		"password":   {id.Password},
		"dest":       {a.endpoints.Session},
		"csrf_token": {csrf},
		"otp":        {""},
	}
	body, status, err := a.do(ctx, client, http.MethodPost, a.endpoints.Login, form)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		log.Printf("[DEBUG] worker='%s' Login response: %d - %s", id.Username, status, truncate(body, 200))
		return Permanent(fmt.Errorf("%w: %s: login returned status %d", ErrAuthFailed, id.Username, status))
	}
	return nil
}

func (a *Authenticator) do(ctx context.Context, client *http.Client, method, target string, form url.Values) ([]byte, int, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, 0, Permanent(fmt.Errorf("failed to build request for %s: %w", target, err))
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Origin", a.endpoints.Home)
	req.Header.Set("Referer", a.endpoints.Login+"/?")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read %s: %w", target, err)
	}
	return data, resp.StatusCode, nil
}

// parseSession extracts the token from the page's data script, which holds
// "window.__r = {...};".
func parseSession(page []byte, now time.Time) (ledger.Token, error) {
	script, err := findScriptData(page)
	if err != nil {
		return ledger.Token{}, err
	}

	raw := strings.TrimSpace(script)
	raw = strings.TrimPrefix(raw, "window.__r = ")
	raw = strings.TrimSuffix(raw, ";")

	var data sessionData
	if err := sonnet.Unmarshal([]byte(raw), &data); err != nil {
		return ledger.Token{}, fmt.Errorf("%w: %v", ErrSessionMalformed, err)
	}

	s := data.User.Session
	switch {
	case s == nil:
		return ledger.Token{}, fmt.Errorf("%w: no user session", ErrSessionMalformed)
	case s.Error != nil:
		return ledger.Token{}, fmt.Errorf("%w: session error %v, check credentials", ErrSessionMalformed, s.Error)
	case s.AccessToken == "":
		return ledger.Token{}, fmt.Errorf("%w: missing accessToken", ErrSessionMalformed)
	case s.ExpiresIn <= 0:
		return ledger.Token{}, fmt.Errorf("%w: missing expiresIn", ErrSessionMalformed)
	}

	return ledger.Token{
		Value:     s.AccessToken,
		ExpiresAt: now.Add(time.Duration(s.ExpiresIn * float64(time.Second))),
	}, nil
}

func findCSRFToken(page []byte) (string, error) {
	doc, err := html.Parse(strings.NewReader(string(page)))
	if err != nil {
		return "", fmt.Errorf("failed to parse login page: %w", err)
	}

	n := findNode(doc, func(n *html.Node) bool {
		return n.Data == "input" && attr(n, "name") == "csrf_token"
	})
	if n == nil {
		return "", fmt.Errorf("login page has no csrf_token input")
	}
	return attr(n, "value"), nil
}

func findScriptData(page []byte) (string, error) {
	doc, err := html.Parse(strings.NewReader(string(page)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSessionMalformed, err)
	}

	n := findNode(doc, func(n *html.Node) bool {
		return n.Data == "script" && attr(n, "id") == "data"
	})
	if n == nil || n.FirstChild == nil || n.FirstChild.Type != html.TextNode {
		return "", fmt.Errorf("%w: no data script", ErrSessionMalformed)
	}
	return n.FirstChild.Data, nil
}

func findNode(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findNode(c, match); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
