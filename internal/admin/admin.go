// Package admin exposes a small read-only gin HTTP surface alongside the
// FastCGI responder: health and stats endpoints only, never a path that
// mutates the engine's state machine.
package admin

import (
	"net"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sylee/fcgi-responder/fcgi"
)

func listen(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}

// Engine is the subset of *fcgi.Listener the admin surface reads from.
type Engine interface {
	IsActive() bool
	StatsSnapshot() fcgi.Stats
}

// Server wraps a gin.Engine bound to a loopback address.
type Server struct {
	engine Engine
	router *gin.Engine
	srv    *http.Server
}

// New builds a Server reading from engine. gin runs in release mode with
// its default Logger/Recovery middleware, matching cmd/webhook/main.go's
// gin.SetMode(gin.ReleaseMode) + gin.Default() habit.
func New(engine Engine) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()

	s := &Server{engine: engine, router: router}
	router.GET("/healthz", s.handleHealthz)
	router.GET("/stats", s.handleStats)
	return s
}

func (s *Server) handleHealthz(c *gin.Context) {
	if !s.engine.IsActive() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "stopped"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.StatsSnapshot())
}

// Start binds addr and serves in the background. Errors other than a
// clean shutdown are logged by the caller via the returned error channel
// semantics of http.Server: ListenAndServe's error, if not
// http.ErrServerClosed, is sent once through errc.
func (s *Server) Start(addr string) (errc <-chan error, err error) {
	s.srv = &http.Server{Addr: addr, Handler: s.router}
	ch := make(chan error, 1)
	ln, err := listen(addr)
	if err != nil {
		return nil, err
	}
	go func() {
		if serveErr := s.srv.Serve(ln); serveErr != nil && serveErr != http.ErrServerClosed {
			ch <- serveErr
		}
		close(ch)
	}()
	return ch, nil
}

// Stop closes the admin HTTP server immediately; it does not wait for
// in-flight requests to finish.
func (s *Server) Stop() error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Close()
}
