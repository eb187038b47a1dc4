// Package httpclient builds the outbound HTTP client used for LLM provider
// calls.
package httpclient

import (
	"net/http"
	"net/url"
	"os"

	"github.com/last-minute-learner/reviewer-api/internal/config"
	"github.com/last-minute-learner/reviewer-api/internal/telemetry"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/http/httpproxy"
)

// ProxyEnvironmentVariables are consulted in order when the LLM config has no
// proxy of its own
var ProxyEnvironmentVariables = []string{
	"HTTPS_PROXY",
	"https_proxy",
	"HTTP_PROXY",
	"http_proxy",
}

var noProxyEnvironmentVariables = []string{"NO_PROXY", "no_proxy"}

// NewLLMClient creates the HTTP client for the configured provider. The
// request timeout comes from cfg.Timeout. cfg.Proxy wins over the proxy
// environment variables, NO_PROXY is honoured, and loopback hosts such as a
// local Ollama are always dialled directly.
func NewLLMClient(cfg config.LLMConfig, logger *logrus.Logger) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = proxyFunc(cfg, logger)

	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: telemetry.WrapHTTPTransport(transport),
	}
}

func proxyFunc(cfg config.LLMConfig, logger *logrus.Logger) func(*http.Request) (*url.URL, error) {
	proxyURL := cfg.Proxy
	if proxyURL == "" {
		proxyURL = getProxyURL()
	}
	if proxyURL == "" {
		return nil
	}

	fields := logrus.Fields{
		"provider":  cfg.Provider,
		"proxy_url": RedactProxyCredentials(proxyURL),
	}
	if _, err := url.Parse(proxyURL); err != nil {
		logger.WithError(err).WithFields(fields).Warn("Failed to parse proxy URL, using direct connection")
		return nil
	}

	proxies := (&httpproxy.Config{
		HTTPProxy:  proxyURL,
		HTTPSProxy: proxyURL,
		NoProxy:    firstEnv(noProxyEnvironmentVariables),
	}).ProxyFunc()

	logger.WithFields(fields).Debug("LLM client configured with proxy")
	return func(req *http.Request) (*url.URL, error) {
		return proxies(req.URL)
	}
}

// getProxyURL returns the first proxy set in the environment, skipping
// unexpanded placeholders some tools leave behind
func getProxyURL() string {
	for _, envVar := range ProxyEnvironmentVariables {
		if proxyURL := os.Getenv(envVar); proxyURL != "" && proxyURL != "$HTTPS_PROXY" && proxyURL != "$HTTP_PROXY" {
			return proxyURL
		}
	}
	return ""
}

func firstEnv(names []string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// RedactProxyCredentials removes credentials from a proxy URL for logging
func RedactProxyCredentials(proxyURL string) string {
	parsed, err := url.Parse(proxyURL)
	if err != nil {
		return "[invalid-url]"
	}
	if parsed.User != nil {
		parsed.User = url.UserPassword("***", "***")
	}
	return parsed.String()
}
