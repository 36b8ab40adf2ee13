package httpclient

import (
	"net/http"
	"time"
)

// sharedTransport is reused by every pooled client so the embedder, generator
// and reranker share keep-alive connections to the model hosts.
var sharedTransport = &http.Transport{
	Proxy:               http.ProxyFromEnvironment,
	MaxIdleConns:        32,
	MaxIdleConnsPerHost: 16,
	IdleConnTimeout:     120 * time.Second,
}

// NewPooledClient creates an http.Client on the shared transport.
func NewPooledClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: sharedTransport,
	}
}
