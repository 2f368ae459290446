package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lewtec/scriptorium/annotation"
	"github.com/lewtec/scriptorium/internal/backend"
	"github.com/lewtec/scriptorium/internal/cache"
	"github.com/lewtec/scriptorium/internal/geometry"
	"github.com/lewtec/scriptorium/internal/overlay"
	"github.com/lewtec/scriptorium/internal/viewer"
)

// session is a viewer opened on one image for the duration of a command.
// The cache carries the working set from one command to the next.
type session struct {
	viewer *viewer.Viewer
	layer  *overlay.Layer
	close  func() error
}

func openKV(config *annotation.Config) (cache.KV, func() error, error) {
	noop := func() error { return nil }
	switch config.Cache.Driver {
	case annotation.CacheMemory:
		log.Printf("cache: memory driver, nothing is kept between commands")
		return cache.NewMemoryKV(), noop, nil
	case annotation.CacheFiles:
		kv, err := cache.OpenFileKV(filepath.Join(config.Cache.Path, "kv"))
		return kv, noop, err
	default:
		if err := os.MkdirAll(config.Cache.Path, 0o755); err != nil {
			return nil, nil, err
		}
		kv, err := cache.OpenSQLiteKV(filepath.Join(config.Cache.Path, "cache.db"))
		if err != nil {
			return nil, nil, err
		}
		return kv, kv.Close, nil
	}
}

func openSession(cmd *cobra.Command, imageID string) (*session, error) {
	config, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	kv, closeKV, err := openKV(config)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	client, err := backend.NewHTTPClient(backend.Options{
		BaseURL:           config.Backend.URL,
		Timeout:           config.Backend.Timeout,
		RequestsPerSecond: config.Backend.RequestsPerSecond,
		Burst:             config.Backend.Burst,
	})
	if err != nil {
		closeKV()
		return nil, err
	}

	layer := overlay.NewLayer()
	v := viewer.New(viewer.Options{
		ImageID:        imageID,
		InfoURL:        config.InfoURL(imageID),
		FallbackHeight: config.Viewer.FallbackHeight,
		Classification: config.NewClassification(),
		Hand:           config.NewHand(),
	}, layer, client, client, cache.NewStore(kv))

	if err := v.Load(cmd.Context()); err != nil {
		v.Close()
		closeKV()
		return nil, err
	}
	layer.Attach()
	return &session{
		viewer: v,
		layer:  layer,
		close: func() error {
			v.Close()
			return closeKV()
		},
	}, nil
}

// withSession opens a session for args[0], runs fn and closes it.
func withSession(fn func(cmd *cobra.Command, s *session, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd, args[0])
		if err != nil {
			return err
		}
		err = fn(cmd, s, args[1:])
		return errors.Join(err, s.close())
	}
}

func printStatus(w io.Writer, s *session) {
	v := s.viewer
	fmt.Fprintf(w, "height: %d\n", v.Height())
	fmt.Fprintf(w, "visible: %t\n", v.Visible())
	fmt.Fprintf(w, "unsaved: %d\n", v.Unsaved())
	if pending := v.PendingDeletes(); len(pending) > 0 {
		fmt.Fprintf(w, "pending deletions: %v\n", pending)
	}
	shapes := v.Shapes()
	fmt.Fprintf(w, "annotations: %d\n", len(shapes))
	for _, shape := range shapes {
		r := geometry.ToBackend(shape.Geometry)
		line := fmt.Sprintf("  %s\t%s", shape.ID, r.Fragment())
		if shape.Label != "" {
			line += "\t[" + shape.Label + "]"
		}
		if shape.Body != "" {
			line += "\t" + shape.Body
		}
		fmt.Fprintln(w, line)
	}
}
