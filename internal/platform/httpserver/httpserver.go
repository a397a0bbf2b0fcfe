package httpserver

import (
	"net/http"
	"time"
)

// New builds an HTTP server with the timeouts escrowops runs with. The write
// timeout leaves room for streamed export archives.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
}
