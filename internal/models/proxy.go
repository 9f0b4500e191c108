package models

import (
	"fmt"
	"net/url"
	"strings"
)

// ProxyEndpoint is one outbound proxy. InUse is a round-robin cursor, not a lock.
type ProxyEndpoint struct {
	Address string
	InUse   bool
}

// ParseProxyLine converts a "host:port:user:password" or "host:port" line into a
// socks5 proxy URL.
func ParseProxyLine(line string) (string, error) {
	line = strings.TrimSpace(line)
	parts := strings.Split(line, ":")
	switch len(parts) {
	case 2:
		if parts[0] == "" || parts[1] == "" {
			return "", fmt.Errorf("invalid proxy line %q", line)
		}
		return "socks5://" + parts[0] + ":" + parts[1], nil
	case 4:
		for _, p := range parts {
			if p == "" {
				return "", fmt.Errorf("invalid proxy line %q", line)
			}
		}
		u := url.URL{
			Scheme: "socks5",
			User:   url.UserPassword(parts[2], parts[3]),
			Host:   parts[0] + ":" + parts[1],
		}
		return u.String(), nil
	default:
		return "", fmt.Errorf("invalid proxy line %q: want host:port[:user:password]", line)
	}
}
