package api

import (
	"fmt"
	"net/netip"
	"net/url"
	"strings"
)

// BaseURLOptions configures which backend base URLs are accepted.
type BaseURLOptions struct {
	// DenyHTTP rejects plain http:// base URLs.
	DenyHTTP bool
	// DenyLocalNetworks rejects loopback, private and link-local targets.
	DenyLocalNetworks bool
}

// ParseBaseURL validates rawURL as a backend base URL and strips any trailing
// slash so that endpoint paths can be appended directly.
//
// The backend is trusted, so plain HTTP and local hosts (the default
// http://localhost:8000 setup) are accepted unless the options say otherwise.
func ParseBaseURL(rawURL string, opts BaseURLOptions) (*url.URL, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	switch parsed.Scheme {
	case "https":
	case "http":
		if opts.DenyHTTP {
			return nil, fmt.Errorf("http scheme is not allowed for base URL %q", rawURL)
		}
	default:
		return nil, fmt.Errorf("unsupported base URL scheme %q", parsed.Scheme)
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return nil, fmt.Errorf("base URL host is required")
	}
	if parsed.RawQuery != "" || parsed.Fragment != "" {
		return nil, fmt.Errorf("base URL must not carry a query or fragment")
	}

	if opts.DenyLocalNetworks {
		if host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".local") {
			return nil, fmt.Errorf("local hostname %q is not allowed", host)
		}
		if addr, err := netip.ParseAddr(host); err == nil {
			addr = addr.Unmap()
			if addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() {
				return nil, fmt.Errorf("local network IP %q is not allowed", host)
			}
		}
	}

	parsed.Path = strings.TrimRight(parsed.Path, "/")
	parsed.RawPath = ""
	return parsed, nil
}
