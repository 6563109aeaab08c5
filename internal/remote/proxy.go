package remote

import (
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"time"
)

// ProxyPool picks a random outbound proxy for every request. An empty pool
// connects directly.
type ProxyPool struct {
	proxies []*url.URL
}

// NewProxyPool parses raw proxy URLs. Entries without a scheme are treated as http.
func NewProxyPool(raw []string) (*ProxyPool, error) {
	pool := &ProxyPool{}
	for _, r := range raw {
		if r == "" {
			continue
		}
		u, err := url.Parse(r)
		if err != nil || u.Host == "" {
			u, err = url.Parse("http://" + r)
		}
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("invalid proxy %q", r)
		}
		pool.proxies = append(pool.proxies, u)
	}
	return pool, nil
}

// Len returns the number of proxies.
func (p *ProxyPool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.proxies)
}

// Pick returns a random proxy, or nil for a direct connection.
func (p *ProxyPool) Pick() *url.URL {
	if p.Len() == 0 {
		return nil
	}
	return p.proxies[rand.IntN(len(p.proxies))]
}

// Proxy has the signature of http.Transport.Proxy.
func (p *ProxyPool) Proxy(*http.Request) (*url.URL, error) {
	return p.Pick(), nil
}

// Transport returns a transport that routes each request through Pick.
func (p *ProxyPool) Transport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.Proxy = p.Proxy
	return t
}

// Client returns an HTTP client using Transport.
func (p *ProxyPool) Client(timeout time.Duration) *http.Client {
	return &http.Client{Transport: p.Transport(), Timeout: timeout}
}
