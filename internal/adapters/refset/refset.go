// Package refset loads reference image collections from disk.
package refset

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/axelofwar/be-community-gamification/internal/config"
	"github.com/axelofwar/be-community-gamification/internal/domain/membership"
	"github.com/axelofwar/be-community-gamification/internal/domain/similarity"
	"github.com/axelofwar/be-community-gamification/pkg/logger"
)

var imageExts = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".webp": {}, ".bmp": {},
}

// Loader reads collection directories.
type Loader struct {
	log         logger.Logger
	concurrency int
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger used for skipped files.
func WithLogger(l logger.Logger) Option {
	return func(ld *Loader) {
		if l != nil {
			ld.log = l
		}
	}
}

// WithConcurrency bounds how many collections are decoded at once.
func WithConcurrency(n int) Option {
	return func(ld *Loader) {
		if n > 0 {
			ld.concurrency = n
		}
	}
}

// NewLoader creates a Loader.
func NewLoader(opts ...Option) *Loader {
	ld := &Loader{log: logger.Nop(), concurrency: 4}
	for _, opt := range opts {
		opt(ld)
	}
	return ld
}

// Load is a convenience wrapper around NewLoader().Load.
func Load(ctx context.Context, defs []config.Collection, opts ...Option) ([]membership.Collection, error) {
	return NewLoader(opts...).Load(ctx, defs)
}

// Load decodes every collection in defs, preserving their order.
func (ld *Loader) Load(ctx context.Context, defs []config.Collection) ([]membership.Collection, error) {
	out := make([]membership.Collection, len(defs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ld.concurrency)
	for i, def := range defs {
		g.Go(func() error {
			c, err := ld.loadOne(gctx, def)
			if err != nil {
				return err
			}
			out[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (ld *Loader) loadOne(ctx context.Context, def config.Collection) (membership.Collection, error) {
	if def.Name == "" || def.Dir == "" {
		return membership.Collection{}, fmt.Errorf("%w: name and dir are required", ErrInvalidDefinition)
	}
	entries, err := os.ReadDir(def.Dir)
	if err != nil {
		return membership.Collection{}, fmt.Errorf("read collection %s: %w", def.Name, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := imageExts[strings.ToLower(filepath.Ext(e.Name()))]; ok {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	prefix := filepath.Base(filepath.Clean(def.Dir))
	refs := make([]membership.Reference, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return membership.Collection{}, err
		}
		img, err := ld.decodeFile(filepath.Join(def.Dir, name))
		if err != nil {
			ld.log.Warn(ctx, "skipping reference image",
				logger.String("collection", def.Name),
				logger.String("file", name),
				logger.Error(err))
			continue
		}
		refs = append(refs, membership.Reference{ID: prefix + "/" + name, Image: img})
	}
	if len(refs) == 0 {
		return membership.Collection{}, fmt.Errorf("%w: %s (%s)", ErrEmptyCollection, def.Name, def.Dir)
	}
	ld.log.Info(ctx, "loaded reference collection",
		logger.String("collection", def.Name),
		logger.Int("references", len(refs)),
		logger.Int("skipped", len(names)-len(refs)))
	return membership.Collection{Name: def.Name, Threshold: def.Threshold, References: refs}, nil
}

func (ld *Loader) decodeFile(path string) (*image.Gray, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return similarity.Decode(data)
}
