package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"catalogsync/internal/model"
)

const (
	OriginSnapshot = "snapshot"
	OriginCache    = "cache"
	OriginRemote   = "remote"
	OriginHTML     = "html"
)

// IDCache keeps identifier lists captured from the category endpoint so a
// later run can proceed when the endpoint starts refusing requests.
type IDCache interface {
	Get(ctx context.Context, categoryID string) ([]string, bool, error)
	Put(ctx context.Context, categoryID string, ids []string) error
}

type IDSourceOptions struct {
	SnapshotDir    string
	IDsPath        string
	CategoryIDsURL string // template with {category_id}
}

type IDResult struct {
	IDs    []string
	Origin string
}

// IDSource resolves the product identifiers of a category: local snapshot
// first, then cache, the remote category endpoint and finally the HTML page.
type IDSource struct {
	session *Session
	opts    IDSourceOptions
	path    *Query
	cache   IDCache
	log     *zap.Logger
}

func NewIDSource(session *Session, opts IDSourceOptions, cache IDCache, log *zap.Logger) (*IDSource, error) {
	if opts.IDsPath == "" {
		opts.IDsPath = "productIds"
	}
	if opts.SnapshotDir == "" {
		opts.SnapshotDir = "category_data"
	}
	path, err := CompileQuery(opts.IDsPath)
	if err != nil {
		return nil, err
	}
	return &IDSource{session: session, opts: opts, path: path, cache: cache, log: log}, nil
}

func (s *IDSource) Resolve(ctx context.Context, cat model.Category) (IDResult, error) {
	log := s.log.With(zap.String("category", cat.ID))
	var failures []error

	if ids, file := s.fromSnapshot(cat, log); len(ids) > 0 {
		log.Info("identifiers loaded from snapshot", zap.String("file", file), zap.Int("count", len(ids)))
		return IDResult{IDs: ids, Origin: OriginSnapshot}, nil
	}

	if s.cache != nil {
		ids, ok, err := s.cache.Get(ctx, cat.ID)
		switch {
		case err != nil:
			log.Warn("identifier cache read failed", zap.Error(err))
		case ok && len(ids) > 0:
			log.Info("identifiers loaded from cache", zap.Int("count", len(ids)))
			return IDResult{IDs: Dedupe(ids), Origin: OriginCache}, nil
		}
	}

	if u := s.remoteURL(cat); u != "" {
		ids, err := s.fromRemote(ctx, u)
		if err == nil && len(ids) > 0 {
			log.Info("identifiers loaded from category endpoint", zap.Int("count", len(ids)))
			if s.cache != nil {
				if err := s.cache.Put(ctx, cat.ID, ids); err != nil {
					log.Warn("identifier cache write failed", zap.Error(err))
				}
			}
			return IDResult{IDs: ids, Origin: OriginRemote}, nil
		}
		if err == nil {
			err = fmt.Errorf("no identifiers at %s", s.opts.IDsPath)
		}
		if errors.Is(err, ErrForbidden) {
			log.Warn("category endpoint refused the request", zap.Error(err))
		} else {
			log.Warn("category endpoint failed", zap.Error(err))
		}
		failures = append(failures, err)
	}

	if cat.HTMLURL != "" {
		body, err := s.session.Get(ctx, "html", cat.HTMLURL, nil)
		if err == nil {
			var ids []string
			ids, err = ExtractProductIDs(bytes.NewReader(body))
			if err == nil && len(ids) > 0 {
				log.Info("identifiers scraped from category page", zap.Int("count", len(ids)))
				return IDResult{IDs: ids, Origin: OriginHTML}, nil
			}
		}
		if err != nil {
			log.Warn("category page failed", zap.Error(err))
			failures = append(failures, err)
		}
	}

	return IDResult{}, errors.Join(append([]error{ErrNoIdentifiers}, failures...)...)
}

func (s *IDSource) remoteURL(cat model.Category) string {
	if cat.RemoteURL != "" {
		return cat.RemoteURL
	}
	if s.opts.CategoryIDsURL == "" {
		return ""
	}
	return strings.ReplaceAll(s.opts.CategoryIDsURL, "{category_id}", cat.ID)
}

func (s *IDSource) snapshotCandidates(cat model.Category) []string {
	if cat.SnapshotPath != "" {
		return []string{cat.SnapshotPath}
	}
	return []string{
		filepath.Join(s.opts.SnapshotDir, cat.ID+".json"),
		filepath.Join(s.opts.SnapshotDir, "category_"+cat.ID+".json"),
		cat.ID + ".json",
		"category_" + cat.ID + ".json",
	}
}

func (s *IDSource) fromSnapshot(cat model.Category, log *zap.Logger) ([]string, string) {
	for _, file := range s.snapshotCandidates(cat) {
		b, err := os.ReadFile(file)
		if err != nil {
			continue
		}
		doc, err := DecodeJSON(b)
		if err != nil {
			log.Warn("snapshot is not valid JSON", zap.String("file", file), zap.Error(err))
			continue
		}
		if ids := Dedupe(s.path.Strings(doc)); len(ids) > 0 {
			return ids, file
		}
	}
	return nil, ""
}

func (s *IDSource) fromRemote(ctx context.Context, url string) ([]string, error) {
	doc, err := s.session.GetJSON(ctx, "category", url)
	if err != nil {
		return nil, err
	}
	return Dedupe(s.path.Strings(doc)), nil
}

// Dedupe drops repeated identifiers keeping the first occurrence.
func Dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
