package config

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// StartWatcher monitors the config file and invokes onReload with the
// freshly loaded config on change. fsnotify with a slow polling safety
// net; only reload-safe fields (pull interval, log verbosity) should be
// consumed from the reloaded value; URLs require a restart.
func StartWatcher(ctx context.Context, path string, onReload func(Config)) {
	if path == "" {
		return
	}

	reload := func() {
		cfg, err := Load(path)
		if err != nil {
			log.Printf("[ERROR] Config Watcher: reload failed: %v", err)
			return
		}
		onReload(cfg)
	}

	watcher, err := fsnotify.NewWatcher()
	usePolling := false
	if err != nil {
		log.Printf("Config Watcher: fsnotify failed (%v), falling back to polling", err)
		usePolling = true
	} else if err := watcher.Add(path); err != nil {
		log.Printf("Config Watcher: failed to watch %s (%v), falling back to polling", path, err)
		usePolling = true
		watcher.Close()
	}

	if !usePolling {
		go func() {
			defer watcher.Close()
			for {
				select {
				case <-ctx.Done():
					return
				case event, ok := <-watcher.Events:
					if !ok {
						return
					}
					if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
						log.Println("Config Watcher: file changed, reloading...")
						// Debounce slightly; editors write in bursts.
						time.Sleep(100 * time.Millisecond)
						reload()
					}
				case err, ok := <-watcher.Errors:
					if !ok {
						return
					}
					log.Printf("Config Watcher Error: %v", err)
				}
			}
		}()
	}

	// Polling safety net. Mtime-gated so an idle file stays quiet.
	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()

		var lastMod time.Time
		if fi, err := os.Stat(path); err == nil {
			lastMod = fi.ModTime()
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fi, err := os.Stat(path)
				if err != nil {
					continue
				}
				if fi.ModTime().After(lastMod) {
					lastMod = fi.ModTime()
					reload()
				}
			}
		}
	}()
}
