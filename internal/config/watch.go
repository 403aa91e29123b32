package config

import (
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Overrides is the shape of the optional hot-reloadable config file.
type Overrides struct {
	ReadTimeoutMS int `json:"readTimeoutMs"`
	MaxConns      int `json:"maxConns"`
}

// Applier is the subset of *fcgi.Listener that Watch needs. Accepting an
// interface here (rather than importing the fcgi package directly) keeps
// this package usable against anything with the same hot-reload hook.
type Applier interface {
	ApplyConfig(readTimeout time.Duration, maxConns int)
}

// Watch watches path for writes and applies its JSON body to target on
// every change, the way cmd/spawner/main.go's watchFcgiBinaries watches
// webRoot for FCGI binary changes: fsnotify.NewWatcher, watcher.Add, then
// a select loop over Events/Errors until the watcher is closed. A parse
// error is logged and the previous values are kept; it never stops the
// watch loop.
func Watch(path string, target Applier, logger *log.Logger) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, err
	}

	applyFile(path, target, logger)

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Write == fsnotify.Write {
					applyFile(path, target, logger)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Printf("config watcher error: %v", err)
			}
		}
	}()

	return watcher, nil
}

func applyFile(path string, target Applier, logger *log.Logger) {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Printf("config reload: reading %s: %v", path, err)
		return
	}
	var o Overrides
	if err := json.Unmarshal(data, &o); err != nil {
		logger.Printf("config reload: parsing %s: %v", path, err)
		return
	}
	readTimeout := time.Duration(o.ReadTimeoutMS) * time.Millisecond
	maxConns := o.MaxConns
	if o.MaxConns == 0 {
		maxConns = -1 // leave the cap unchanged; 0 in JSON means "not set" here
	}
	target.ApplyConfig(readTimeout, maxConns)
	logger.Printf("config reload: applied overrides from %s", path)
}
