package atlas

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"cortexmap/internal/models"
	"cortexmap/pkg/calibration"
)

const (
	mapFileSuffix       = "_map.svg"
	calibrationFileName = "bregma_level_widths.json"
)

// ErrNotFound is returned for an atlas name with no data directory.
var ErrNotFound = errors.New("atlas not found")

var validName = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Entry is a built atlas together with its calibration table. Both are
// read-only.
type Entry struct {
	Atlas *models.AtlasModel
	Table *calibration.Table
}

// Store builds atlases from a data directory on first use and caches them
// by name. Concurrent requests for an atlas that is not cached yet share a
// single build. An atlas named "mouse" is read from
// <dataDir>/mouse/mouse_map.svg and <dataDir>/mouse/bregma_level_widths.json.
type Store struct {
	dataDir  string
	opts     Options
	tieBreak calibration.TieBreak
	logger   *zap.Logger

	cache *cache.Cache
	group singleflight.Group
}

// NewStore creates a store. A zero ttl keeps atlases until invalidated.
func NewStore(dataDir string, opts Options, tieBreak calibration.TieBreak, ttl time.Duration, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}

	expiration, cleanup := cache.NoExpiration, time.Hour
	if ttl > 0 {
		expiration, cleanup = ttl, 2*ttl
	}

	return &Store{
		dataDir:  dataDir,
		opts:     opts,
		tieBreak: tieBreak,
		logger:   logger,
		cache:    cache.New(expiration, cleanup),
	}
}

// NameError reports an atlas name that cannot be used as a directory name.
type NameError struct {
	Name string
}

func (e *NameError) Error() string {
	return fmt.Sprintf("invalid atlas name %q", e.Name)
}

// NormalizeName lower-cases an atlas name and checks that it is safe to
// use as a directory name.
func NormalizeName(name string) (string, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if !validName.MatchString(n) {
		return "", &NameError{Name: name}
	}
	return n, nil
}

// Get returns the named atlas, building it if it is not cached.
func (s *Store) Get(ctx context.Context, name string) (*Entry, error) {
	key, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}

	if v, ok := s.cache.Get(key); ok {
		return v.(*Entry), nil
	}

	ch := s.group.DoChan(key, func() (interface{}, error) {
		if v, ok := s.cache.Get(key); ok {
			return v, nil
		}

		// The build outlives any single caller that gives up waiting.
		entry, err := s.build(context.WithoutCancel(ctx), key)
		if err != nil {
			return nil, err
		}
		s.cache.SetDefault(key, entry)
		return entry, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		entry, ok := res.Val.(*Entry)
		if !ok {
			return nil, fmt.Errorf("unexpected return type from singleflight: %T", res.Val)
		}
		return entry, nil
	}
}

// Put stores a prebuilt atlas under a name.
func (s *Store) Put(name string, entry *Entry) error {
	key, err := NormalizeName(name)
	if err != nil {
		return err
	}
	s.cache.SetDefault(key, entry)
	return nil
}

// Invalidate drops a cached atlas so that the next Get rebuilds it.
func (s *Store) Invalidate(name string) {
	if key, err := NormalizeName(name); err == nil {
		s.cache.Delete(key)
	}
}

// Names lists the atlases available in the data directory.
func (s *Store) Names() ([]string, error) {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return nil, fmt.Errorf("error reading atlas directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() || !validName.MatchString(e.Name()) {
			continue
		}
		if _, err := os.Stat(s.mapPath(e.Name())); err == nil {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) mapPath(key string) string {
	return filepath.Join(s.dataDir, key, key+mapFileSuffix)
}

func (s *Store) build(ctx context.Context, key string) (*Entry, error) {
	start := time.Now()

	f, err := os.Open(s.mapPath(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("error opening atlas %s: %w", key, err)
	}
	defer f.Close()

	s.logger.Debug("Building atlas", zap.String("atlas", key), zap.Stringer("options", s.opts))

	model, err := Parse(ctx, key, f, s.opts, s.logger)
	if err != nil {
		return nil, err
	}

	table, err := calibration.LoadFile(filepath.Join(s.dataDir, key, calibrationFileName), s.tieBreak)
	if err != nil {
		return nil, models.WrapError(models.AtlasParseError, err, "loading calibration table of atlas %s", key)
	}

	s.logger.Info("Cached atlas",
		zap.String("atlas", key),
		zap.Int("calibrationEntries", table.Len()),
		zap.Duration("elapsed", time.Since(start)))
	return &Entry{Atlas: model, Table: table}, nil
}
