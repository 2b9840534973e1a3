package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/open-feature/appflagd/pkg/model"
	"github.com/open-feature/appflagd/pkg/schema"
)

// FilePathProvider reads a flag table from a JSON or YAML file and re-reads it
// whenever the file is written, replaced or the resync schedule fires.
type FilePathProvider struct {
	URI            string
	ResyncSchedule string
	Logger         *log.Entry
}

func (fp *FilePathProvider) Source() string {
	return "file:" + fp.URI
}

func (fp *FilePathProvider) logger() *log.Entry {
	if fp.Logger == nil {
		return log.WithFields(log.Fields{"component": "provider", "source": fp.Source()})
	}
	return fp.Logger
}

func (fp *FilePathProvider) Sync(ctx context.Context, dataSync chan<- DataSync) error {
	table, err := fp.parse()
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("unable to create file watcher: %w", err)
	}
	defer watcher.Close()

	// watch the directory, editors and config maps replace files rather than
	// writing them in place
	if err := watcher.Add(filepath.Dir(fp.URI)); err != nil {
		return fmt.Errorf("unable to watch %s: %w", fp.URI, err)
	}

	resync := make(chan struct{}, 1)
	stop, err := startResync(fp.ResyncSchedule, resync)
	if err != nil {
		return err
	}
	defer stop()

	if !fp.send(ctx, dataSync, table) {
		return nil
	}

	target := filepath.Clean(fp.URI)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fp.logger().Errorf("watcher error: %v", err)
			continue
		case <-resync:
			fp.logger().Debug("scheduled resync")
		}

		table, err := fp.parse()
		if err != nil {
			// a partially written file fails to parse; the next write event retries
			fp.logger().Errorf("unable to read flag table: %v", err)
			continue
		}
		if !fp.send(ctx, dataSync, table) {
			return nil
		}
		fp.logger().Info("flag values updated")
	}
}

func (fp *FilePathProvider) send(ctx context.Context, dataSync chan<- DataSync, table model.FlagTable) bool {
	select {
	case dataSync <- DataSync{Source: fp.Source(), Table: table}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (fp *FilePathProvider) parse() (model.FlagTable, error) {
	if fp.URI == "" {
		return nil, errors.New("no filepath string set")
	}
	rawFile, err := os.ReadFile(fp.URI)
	if err != nil {
		return nil, err
	}
	return ParseDocument(rawFile, filepath.Ext(fp.URI))
}

// ParseDocument validates and decodes a flag table document. ext selects the
// format: ".yaml" and ".yml" are read as YAML, anything else as JSON.
func ParseDocument(raw []byte, ext string) (model.FlagTable, error) {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("%w: %s", model.ErrParse, err)
		}
		if err := schema.ValidateGo(doc); err != nil {
			return nil, err
		}
		// the schema accepted it, so it is plain JSON data
		b, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", model.ErrParse, err)
		}
		raw = b
	default:
		if err := schema.Validate(raw); err != nil {
			return nil, err
		}
	}

	var doc model.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	if doc.Flags == nil {
		doc.Flags = model.FlagTable{}
	}
	return doc.Flags, nil
}
