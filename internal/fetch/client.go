// Package fetch issues paced, proxy-rotated HTTP requests to the marketplace and
// to the local companion service.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/net/proxy"

	"github.com/rewired-gh/skinscout/internal/metrics"
)

const (
	clientMarketplace = "marketplace"
	clientCompanion   = "companion"

	maxBodyBytes = 8 << 20
	userAgent    = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36"
)

// Client fetches marketplace JSON through the shared Gate and the proxy pool.
type Client struct {
	gate    *Gate
	policy  Policy
	pool    *ProxyPool
	timeout time.Duration
	metrics *metrics.Collector

	mu      sync.Mutex
	clients map[string]*http.Client
}

// NewClient creates a marketplace client. pool may be nil for direct connections.
func NewClient(gate *Gate, policy Policy, pool *ProxyPool, timeout time.Duration, m *metrics.Collector) *Client {
	if pool == nil {
		pool = NewProxyPool(nil)
	}
	return &Client{
		gate:    gate,
		policy:  policy,
		pool:    pool,
		timeout: timeout,
		metrics: m,
		clients: make(map[string]*http.Client),
	}
}

// Get fetches rawURL and returns the response body of a 200 response.
// Failures are *RequestError unless ctx was cancelled.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	var body []byte
	start := time.Now()
	err := c.gate.Do(ctx, c.policy, func(ctx context.Context) error {
		proxyAddr, _ := c.pool.Acquire()
		httpClient, err := c.httpClient(proxyAddr)
		if err != nil {
			return &RequestError{Kind: KindProxy, Proxy: proxyAddr, Err: err}
		}
		body, err = doGet(ctx, httpClient, rawURL, proxyAddr)
		return err
	})
	c.metrics.ObserveRequest(clientMarketplace, outcome(err), time.Since(start))
	return body, err
}

// httpClient returns the cached client for proxyAddr, building its transport on first use.
func (c *Client) httpClient(proxyAddr string) (*http.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if hc, ok := c.clients[proxyAddr]; ok {
		return hc, nil
	}

	dialer := &net.Dialer{Timeout: c.timeout}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: c.timeout,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
	}

	if proxyAddr != "" {
		u, err := url.Parse(proxyAddr)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}
		d, err := proxy.FromURL(u, dialer)
		if err != nil {
			return nil, fmt.Errorf("unsupported proxy: %w", err)
		}
		if cd, ok := d.(proxy.ContextDialer); ok {
			transport.DialContext = cd.DialContext
		} else {
			transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
				return d.Dial(network, addr)
			}
		}
	}

	hc := &http.Client{Transport: transport, Timeout: c.timeout}
	c.clients[proxyAddr] = hc
	return hc, nil
}

// CompanionClient queries the local pattern lookup service. It never uses a proxy.
type CompanionClient struct {
	baseURL    string
	gate       *Gate
	policy     Policy
	httpClient *http.Client
	metrics    *metrics.Collector
}

// PatternInfo is the subset of the companion response the filters use.
type PatternInfo struct {
	FloatValue float64 `json:"floatvalue"`
	PaintSeed  int     `json:"paintseed"`
}

type companionResponse struct {
	ItemInfo *PatternInfo `json:"iteminfo"`
}

// NewCompanionClient creates a companion client. Passing the marketplace Gate makes
// lookups contend with marketplace requests; a private Gate keeps them independent.
func NewCompanionClient(baseURL string, gate *Gate, policy Policy, timeout time.Duration, m *metrics.Collector) *CompanionClient {
	return &CompanionClient{
		baseURL:    baseURL,
		gate:       gate,
		policy:     policy,
		httpClient: &http.Client{Timeout: timeout},
		metrics:    m,
	}
}

// Get fetches rawURL from the companion service.
func (c *CompanionClient) Get(ctx context.Context, rawURL string) ([]byte, error) {
	var body []byte
	start := time.Now()
	err := c.gate.Do(ctx, c.policy, func(ctx context.Context) error {
		var err error
		body, err = doGet(ctx, c.httpClient, rawURL, "")
		return err
	})
	c.metrics.ObserveRequest(clientCompanion, outcome(err), time.Since(start))
	return body, err
}

// Inspect resolves the pattern attributes behind an inspect link.
func (c *CompanionClient) Inspect(ctx context.Context, inspectLink string) (PatternInfo, error) {
	u := c.baseURL + "/?" + url.Values{"url": {inspectLink}}.Encode()

	body, err := c.Get(ctx, u)
	if err != nil {
		return PatternInfo{}, err
	}

	var resp companionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return PatternInfo{}, fmt.Errorf("failed to decode companion response: %w", err)
	}
	if resp.ItemInfo == nil {
		return PatternInfo{}, fmt.Errorf("companion response has no iteminfo")
	}
	return *resp.ItemInfo, nil
}

func doGet(ctx context.Context, hc *http.Client, rawURL, proxyAddr string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := hc.Do(req)
	if err != nil {
		return nil, classify(ctx, err, proxyAddr)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, &RequestError{Kind: KindStatus, Status: resp.StatusCode, Proxy: proxyAddr}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, classify(ctx, err, proxyAddr)
	}
	return body, nil
}

func outcome(err error) string {
	if err == nil {
		return metrics.OutcomeOK
	}
	if reqErr, ok := err.(*RequestError); ok {
		return reqErr.Kind.String()
	}
	return metrics.OutcomeError
}
