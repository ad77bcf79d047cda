package backend

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/jrsteele09/agentify-session/internal/errors"
	"github.com/rs/zerolog/log"
)

// NewProxy forwards requests under prefix to the backend with prefix
// stripped, sending them through transport
func NewProxy(baseURL, prefix string, transport http.RoundTripper) (http.Handler, error) {
	target, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "[NewProxy] invalid backend url %q", baseURL)
	}

	proxy := &httputil.ReverseProxy{
		Rewrite: func(r *httputil.ProxyRequest) {
			r.Out.URL.Path = strings.TrimPrefix(r.In.URL.Path, strings.TrimSuffix(prefix, "/"))
			r.Out.URL.RawPath = ""
			r.SetURL(target)
			r.Out.Header.Del("Cookie")
			r.SetXForwarded()
		},
		Transport: transport,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			if errors.Is(err, errors.ErrNoSession) {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			log.Err(err).Str("path", r.URL.Path).Msg("backend proxy error")
			http.Error(w, "Bad Gateway", http.StatusBadGateway)
		},
	}
	return proxy, nil
}
