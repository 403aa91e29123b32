// Command fcgi-responder runs the FastCGI Responder engine as a
// standalone binary: it loads Config, starts the engine listener, and
// optionally starts the admin HTTP surface and the config file
// watcher, the same three-goroutine shape cmd/spawner/main.go starts
// (cleanup loop, file watcher, HTTP listener) adapted to this engine's
// own components.
package main

import (
	"log"
	"os"

	"github.com/sylee/fcgi-responder/fcgi"
	"github.com/sylee/fcgi-responder/internal/admin"
	"github.com/sylee/fcgi-responder/internal/config"
)

// responder wires a *fcgi.Listener to its optional admin surface; the
// config watcher is started by main. Split out from main so main_test.go
// can exercise the wiring without binding real sockets.
type responder struct {
	engine *fcgi.Listener
	admin  *admin.Server
}

func newResponder(cfg *config.Config) *responder {
	engine := fcgi.NewListener()
	engine.ApplyConfig(cfg.ReadTimeout, cfg.MaxConns)

	r := &responder{engine: engine}
	if cfg.AdminAddr != "" {
		r.admin = admin.New(engine)
	}
	return r
}

func main() {
	cfg := config.Load(os.Args[1:])

	r := newResponder(cfg)
	if err := r.engine.SetHandlers(nil, defaultHandler); err != nil {
		log.Fatalf("SetHandlers: %v", err)
	}

	if cfg.ConfigFile != "" {
		logger := log.New(os.Stderr, "config: ", log.LstdFlags)
		watcher, err := config.Watch(cfg.ConfigFile, r.engine, logger)
		if err != nil {
			log.Fatalf("config.Watch: %v", err)
		}
		defer watcher.Close()
	}

	if r.admin != nil {
		errc, err := r.admin.Start(cfg.AdminAddr)
		if err != nil {
			log.Fatalf("admin.Start: %v", err)
		}
		go func() {
			if err := <-errc; err != nil {
				log.Printf("admin surface stopped: %v", err)
			}
		}()
		log.Printf("admin surface listening on %s", cfg.AdminAddr)
	}

	if err := r.engine.Start(cfg.ListenAddr); err != nil {
		log.Fatalf("Start: %v", err)
	}
	log.Printf("fcgi-responder listening on %s", r.engine.Addr())
	select {}
}

// defaultHandler answers every request with a placeholder body; real
// deployments embed the fcgi package directly and call SetHandlers
// with their own application logic instead of running this binary.
func defaultHandler(req *fcgi.Request, resp *fcgi.Response) {
	resp.Write([]byte("fcgi-responder is running\n"))
}
