// SPDX-License-Identifier: MIT

package gate

import (
	"bufio"
	"context"
	"log"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
)

// LoadStaticAllowList reads one pubkey per line, '#' starts a comment.
func LoadStaticAllowList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open static allow-list %q", path)
	}
	defer f.Close()

	var pubkeys []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		pubkeys = append(pubkeys, strings.ToLower(line))
	}

	return pubkeys, errors.Wrapf(scanner.Err(), "failed to read static allow-list %q", path)
}

// WatchStaticAllowList reloads the gate's static list whenever the file
// changes, until ctx is cancelled. A reload failure keeps the previous list.
func (g *Gate) WatchStaticAllowList(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create allow-list watcher")
	}
	if err = watcher.Add(path); err != nil {
		watcher.Close()

		return errors.Wrapf(err, "failed to watch allow-list %q", path)
	}

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
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				pubkeys, loadErr := LoadStaticAllowList(path)
				if loadErr != nil {
					log.Printf("ERROR:%v", errors.Wrap(loadErr, "failed to reload static allow-list"))

					continue
				}
				g.ReplaceStatic(pubkeys)
				log.Printf("static allow-list reloaded: %v entries", len(pubkeys))
			case watchErr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("ERROR:%v", errors.Wrap(watchErr, "allow-list watcher failed"))
			}
		}
	}()

	return nil
}
