package proxy

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultUserAgent is sent when the client did not provide one
const DefaultUserAgent = "Yusic-Server/1.0"

// allowedHeaders are the only client request headers forwarded upstream
var allowedHeaders = []string{
	"Content-Type",
	"Authorization",
	"User-Agent",
	"Accept",
	"Accept-Encoding",
	"Accept-Language",
}

// Config configures the upstream music API proxy
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// New returns a handler forwarding every request to BaseURL + request path.
// Mount it with http.StripPrefix so the path is relative to the mount point.
func New(cfg Config) (http.Handler, error) {
	target, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream base URL: %w", err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("upstream base URL %q must be absolute", cfg.BaseURL)
	}

	if cfg.APIKey == "" {
		log.Warn().Msg("TUNEHUB_API_KEY is not set, upstream API requests may be rejected")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)

			header := make(http.Header, len(allowedHeaders)+1)
			for _, key := range allowedHeaders {
				if values := pr.In.Header.Values(key); len(values) > 0 {
					header[key] = values
				}
			}
			if header.Get("User-Agent") == "" {
				header.Set("User-Agent", DefaultUserAgent)
			}
			header.Set("X-Api-Key", cfg.APIKey)
			pr.Out.Header = header
		},
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   timeout,
				KeepAlive: time.Second,
			}).DialContext,
			MaxIdleConns:          256,
			MaxIdleConnsPerHost:   256,
			IdleConnTimeout:       60 * time.Second,
			ResponseHeaderTimeout: timeout,
		},
		ErrorHandler: handleError,
	}, nil
}

func handleError(w http.ResponseWriter, r *http.Request, err error) {
	if strings.Contains(err.Error(), "connection reset") {
		log.Warn().Str("path", r.URL.Path).Msg("upstream connection reset")
	} else {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("proxy error")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadGateway)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"code":    -1,
		"message": "proxy error",
	}); err != nil {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("failed to encode proxy error response")
	}
}
