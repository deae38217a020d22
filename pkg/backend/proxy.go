package backend

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"
)

var (
	ErrInvalidProxyURL   = errors.New("invalid proxy URL")
	ErrUnsupportedScheme = errors.New("unsupported proxy scheme")
)

var supportedSchemes = map[string]bool{
	"http":   true,
	"https":  true,
	"socks5": true,
}

// NewHTTPClient creates an HTTP client that optionally routes through
// proxyURL (http, https or socks5, credentials in the userinfo part).
// timeout bounds whole requests; zero means no limit.
func NewHTTPClient(proxyURL string, timeout time.Duration) (*http.Client, error) {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
	}
	if proxyURL != "" {
		parsed, err := parseProxy(proxyURL)
		if err != nil {
			return nil, err
		}
		if parsed.Scheme == "socks5" {
			var auth *proxy.Auth
			if parsed.User != nil {
				pass, _ := parsed.User.Password()
				auth = &proxy.Auth{User: parsed.User.Username(), Password: pass}
			}
			dialer, err := proxy.SOCKS5("tcp", parsed.Host, auth, proxy.Direct)
			if err != nil {
				return nil, err
			}
			transport.Proxy = nil
			if cd, ok := dialer.(proxy.ContextDialer); ok {
				transport.DialContext = cd.DialContext
			} else {
				transport.Dial = dialer.Dial
			}
		} else {
			transport.Proxy = http.ProxyURL(parsed)
		}
	}
	return &http.Client{Transport: transport, Timeout: timeout}, nil
}

func parseProxy(raw string) (*url.URL, error) {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, ErrInvalidProxyURL
	}
	if !supportedSchemes[parsed.Scheme] {
		return nil, ErrUnsupportedScheme
	}
	return parsed, nil
}
