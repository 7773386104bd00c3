package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-kit/log"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/atomic"

	"github.com/thraxil/nowplaying/loader"
	"github.com/thraxil/nowplaying/movies"
)

var errNoMovie = errors.New("no movie at that index")

// imageLoader is the part of *loader.Loader the screen uses.
type imageLoader interface {
	Request(rawURL string, target loader.Size, scale float64, cb loader.Callback) (loader.Handle, error)
	Cancel(h loader.Handle) bool
}

// movieList is the part of *movies.Manager the screen uses.
type movieList interface {
	Movie(i int) (movies.Movie, bool)
	ByID(id int) (movies.Movie, bool)
	Movies() []movies.Movie
	Len() int
	HasMore() bool
	FetchMore(ctx context.Context) error
}

// screen is the now playing list. Rows are bound to image requests as
// they are shown, rows coming up are prefetched through the same
// loader, and showing the last row asks for the next page.
type screen struct {
	list   movieList
	images imageLoader
	cfg    *siteConfig
	logger log.Logger
	thumbs *lru.Cache[int, thumbnail]
	ready  *atomic.Bool

	mu       sync.Mutex
	cells    map[int]loader.Handle // row -> bound request
	loading  map[int]loader.Handle // movie id -> request filling the cache
	failures map[int]error         // movie id -> last failed load
	lastErr  error
}

func newScreen(list movieList, images imageLoader, cfg *siteConfig, logger log.Logger) (*screen, error) {
	thumbs, err := lru.New[int, thumbnail](cfg.ThumbnailCacheSize)
	if err != nil {
		return nil, err
	}
	return &screen{
		list:     list,
		images:   images,
		cfg:      cfg,
		logger:   logger,
		thumbs:   thumbs,
		ready:    atomic.NewBool(false),
		cells:    make(map[int]loader.Handle),
		loading:  make(map[int]loader.Handle),
		failures: make(map[int]error),
	}, nil
}

func (s *screen) cellSize() loader.Size {
	return loader.Size{Width: s.cfg.CellWidth, Height: s.cfg.CellHeight}
}

// BindCell puts the movie at index into a cell of the given size. A
// row that was bound before gives up its previous request.
func (s *screen) BindCell(index int, target loader.Size, scale float64) error {
	mv, ok := s.list.Movie(index)
	if !ok {
		return fmt.Errorf("%w: %d", errNoMovie, index)
	}
	s.mu.Lock()
	old, rebound := s.cells[index]
	delete(s.cells, index)
	s.mu.Unlock()
	if rebound {
		s.images.Cancel(old)
	}

	if s.thumbs.Contains(mv.ID) {
		return nil
	}
	u, ok := mv.BackdropURL(movies.Medium)
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	h, err := s.images.Request(u, target, scale, func(r loader.Result) {
		s.store(mv, r)
		s.mu.Lock()
		if s.cells[index] == r.Handle {
			delete(s.cells, index)
		}
		s.mu.Unlock()
	})
	if err != nil {
		return err
	}
	s.cells[index] = h
	return nil
}

// Prefetch warms the thumbnail cache for rows about to scroll in.
// It never blocks on the network.
func (s *screen) Prefetch(indices []int) error {
	var firstErr error
	for _, i := range indices {
		mv, ok := s.list.Movie(i)
		if !ok {
			continue
		}
		if err := s.load(mv); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// CancelPrefetch drops prefetches for rows that scrolled away before
// they were needed.
func (s *screen) CancelPrefetch(indices []int) {
	for _, i := range indices {
		mv, ok := s.list.Movie(i)
		if !ok {
			continue
		}
		s.mu.Lock()
		h, ok := s.loading[mv.ID]
		delete(s.loading, mv.ID)
		s.mu.Unlock()
		if ok {
			s.images.Cancel(h)
		}
	}
}

func (s *screen) load(mv movies.Movie) error {
	if s.thumbs.Contains(mv.ID) {
		return nil
	}
	u, ok := mv.BackdropURL(movies.Medium)
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.loading[mv.ID]; ok {
		return nil
	}
	h, err := s.images.Request(u, s.cellSize(), s.cfg.Scale, func(r loader.Result) {
		s.store(mv, r)
		s.mu.Lock()
		if s.loading[mv.ID] == r.Handle {
			delete(s.loading, mv.ID)
		}
		s.mu.Unlock()
	})
	if err != nil {
		return err
	}
	s.loading[mv.ID] = h
	return nil
}

func (s *screen) store(mv movies.Movie, r loader.Result) {
	if r.Err != nil {
		_ = s.logger.Log("level", "WARN", "msg", "couldn't load thumbnail", "movie", mv.ID, "error", r.Err)
		s.mu.Lock()
		s.failures[mv.ID] = r.Err
		s.mu.Unlock()
		return
	}
	t, err := encodeThumbnail(r.Image)
	if err != nil {
		_ = s.logger.Log("level", "ERR", "msg", "couldn't encode thumbnail", "movie", mv.ID, "error", err)
		return
	}
	s.thumbs.Add(mv.ID, t)
	s.mu.Lock()
	delete(s.failures, mv.ID)
	s.mu.Unlock()
}

// WillDisplay is called for every row shown; the last row loads more.
func (s *screen) WillDisplay(ctx context.Context, index int) error {
	if index != s.list.Len()-1 || !s.list.HasMore() {
		return nil
	}
	return s.list.FetchMore(ctx)
}

// Thumbnail returns the cached thumbnail for a movie, if loaded.
func (s *screen) Thumbnail(id int) (thumbnail, bool) {
	return s.thumbs.Get(id)
}

// Failure returns and forgets the last load error for a movie, so the
// next ask retries.
func (s *screen) Failure(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.failures[id]
	delete(s.failures, id)
	return err
}

// Show binds rows [offset, offset+VisibleRows), prefetches the next
// PrefetchAhead rows and fires the pagination trigger.
func (s *screen) Show(ctx context.Context, offset int) []movies.Movie {
	if s.list.Len() == 0 && s.list.HasMore() {
		_ = s.list.FetchMore(ctx)
	}
	if offset < 0 {
		offset = 0
	}
	all := s.list.Movies()
	if offset > len(all) {
		offset = len(all)
	}
	end := offset + s.cfg.VisibleRows
	if end > len(all) {
		end = len(all)
	}
	for i := offset; i < end; i++ {
		if err := s.BindCell(i, s.cellSize(), s.cfg.Scale); err != nil {
			_ = s.logger.Log("level", "WARN", "msg", "couldn't bind cell", "row", i, "error", err)
		}
	}
	var ahead []int
	for i := end; i < end+s.cfg.PrefetchAhead && i < len(all); i++ {
		ahead = append(ahead, i)
	}
	if err := s.Prefetch(ahead); err != nil {
		_ = s.logger.Log("level", "WARN", "msg", "prefetch failed", "error", err)
	}
	if end > offset {
		if err := s.WillDisplay(ctx, end-1); err != nil {
			_ = s.logger.Log("level", "WARN", "msg", "couldn't load more movies", "error", err)
		}
	}
	return all[offset:end]
}

func (s *screen) OnDataReady() {
	s.ready.Store(true)
	s.mu.Lock()
	s.lastErr = nil
	s.mu.Unlock()
	_ = s.logger.Log("level", "INFO", "msg", "movie list updated", "movies", s.list.Len())
}

func (s *screen) OnError(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	_ = s.logger.Log("level", "ERR", "msg", "unable to fetch list of movies", "error", err)
}

func (s *screen) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *screen) Ready() bool {
	return s.ready.Load()
}
