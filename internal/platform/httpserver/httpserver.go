package httpserver

import (
	"net/http"
	"time"
)

// New builds the API server. Header reads are bounded so slow clients
// cannot pin accept loops; handler timeouts come from the router middleware.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
