package httpx

import (
	"fmt"
	"net/http"
	"time"
)

// NewServer creates the HTTP server for handler. onShutdown hooks run when
// Shutdown starts; long-lived streams use them to end their handlers, since
// Shutdown waits for active requests and never cancels them itself.
func NewServer(port int, handler http.Handler, onShutdown ...func()) *http.Server {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	for _, f := range onShutdown {
		server.RegisterOnShutdown(f)
	}
	return server
}
