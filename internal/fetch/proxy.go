package fetch

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/rewired-gh/skinscout/internal/models"
)

// ProxyPool rotates outbound proxies round-robin. An empty pool means direct connections.
type ProxyPool struct {
	mu        sync.Mutex
	endpoints []models.ProxyEndpoint
}

// NewProxyPool creates a pool over the given proxy URLs, all initially unused.
func NewProxyPool(addresses []string) *ProxyPool {
	endpoints := make([]models.ProxyEndpoint, 0, len(addresses))
	for _, addr := range addresses {
		endpoints = append(endpoints, models.ProxyEndpoint{Address: addr})
	}
	return &ProxyPool{endpoints: endpoints}
}

// Acquire returns the first unused endpoint and marks it used. When every endpoint
// is used they are all reset and the first is returned. ok is false for an empty pool.
func (p *ProxyPool) Acquire() (address string, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.endpoints) == 0 {
		return "", false
	}

	for i := range p.endpoints {
		if !p.endpoints[i].InUse {
			p.endpoints[i].InUse = true
			return p.endpoints[i].Address, true
		}
	}

	for i := range p.endpoints {
		p.endpoints[i].InUse = false
	}
	return p.endpoints[0].Address, true
}

// Len returns the number of endpoints in the pool.
func (p *ProxyPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.endpoints)
}

// LoadProxyFile reads one proxy per line. Blank lines and lines starting with '#' are skipped.
func LoadProxyFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open proxy file: %w", err)
	}
	defer f.Close()

	var addresses []string
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		addr, err := models.ParseProxyLine(line)
		if err != nil {
			return nil, fmt.Errorf("proxy file line %d: %w", lineNo, err)
		}
		addresses = append(addresses, addr)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read proxy file: %w", err)
	}

	return addresses, nil
}
