// Package movies keeps the ordered list of now-playing movies and pages
// through the remote listing as the list is scrolled.
package movies

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/go-kit/log"
	"golang.org/x/sync/singleflight"
)

const defaultLoadTimeout = 30 * time.Second

// Delegate hears about every page load, once per load.
type Delegate interface {
	OnDataReady()
	OnError(err error)
}

// Source is what the manager pages through; *Client satisfies it.
type Source interface {
	NowPlaying(ctx context.Context, page int) (*Page, error)
}

type Manager struct {
	source   Source
	delegate Delegate
	logger   log.Logger
	group    singleflight.Group
	timeout  time.Duration

	mu         sync.RWMutex
	movies     []Movie
	seen       map[int]bool
	page       int
	totalPages int
}

func NewManager(source Source, delegate Delegate, logger log.Logger) *Manager {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Manager{
		source:   source,
		delegate: delegate,
		logger:   logger,
		timeout:  defaultLoadTimeout,
		seen:     make(map[int]bool),
	}
}

// SetTimeout bounds each page load. Loads run detached from the
// callers' contexts, so this is what stops a stuck request.
func (m *Manager) SetTimeout(d time.Duration) {
	if d > 0 {
		m.timeout = d
	}
}

// SetDelegate swaps the delegate; the screen and the manager refer to
// each other so one of them has to be wired after construction.
func (m *Manager) SetDelegate(d Delegate) {
	m.mu.Lock()
	m.delegate = d
	m.mu.Unlock()
}

// FetchMore loads the next page, if any. Calls made while that page is
// loading wait for the same load instead of starting another. On
// failure the cursor stays put so the next call retries the page.
//
// The load itself does not belong to any one caller: a caller whose
// ctx ends stops waiting and gets ctx.Err(), while the load carries on
// for everyone else.
func (m *Manager) FetchMore(ctx context.Context) error {
	m.mu.RLock()
	next := m.page + 1
	done := m.page > 0 && m.page >= m.totalPages
	m.mu.RUnlock()
	if done {
		return nil
	}
	ch := m.group.DoChan(strconv.Itoa(next), func() (interface{}, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
		defer cancel()
		return nil, m.load(lctx, next)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) load(ctx context.Context, next int) error {
	m.mu.RLock()
	loaded := m.page >= next
	m.mu.RUnlock()
	if loaded {
		return nil
	}

	p, err := m.source.NowPlaying(ctx, next)
	if err != nil {
		_ = m.logger.Log("level", "ERR", "msg", "couldn't load now playing page", "page", next, "error", err)
		if d := m.getDelegate(); d != nil {
			d.OnError(err)
		}
		return err
	}

	m.mu.Lock()
	added := 0
	for _, mv := range p.Results {
		if m.seen[mv.ID] {
			continue
		}
		m.seen[mv.ID] = true
		m.movies = append(m.movies, mv)
		added++
	}
	m.page = next
	m.totalPages = p.TotalPages
	if m.totalPages < m.page {
		m.totalPages = m.page
	}
	total := len(m.movies)
	m.mu.Unlock()

	_ = m.logger.Log("level", "INFO", "msg", "loaded now playing page", "page", next,
		"added", added, "total", total, "total_pages", p.TotalPages)
	if d := m.getDelegate(); d != nil {
		d.OnDataReady()
	}
	return nil
}

func (m *Manager) getDelegate() Delegate {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.delegate
}

// Movies returns a copy of the list in display order.
func (m *Manager) Movies() []Movie {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Movie, len(m.movies))
	copy(out, m.movies)
	return out
}

func (m *Manager) Movie(i int) (Movie, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i < 0 || i >= len(m.movies) {
		return Movie{}, false
	}
	return m.movies[i], true
}

// ByID finds a loaded movie.
func (m *Manager) ByID(id int) (Movie, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, mv := range m.movies {
		if mv.ID == id {
			return mv, true
		}
	}
	return Movie{}, false
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.movies)
}

// HasMore is true until the last page has been loaded.
func (m *Manager) HasMore() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.page == 0 || m.page < m.totalPages
}

// Page is the last page loaded, 0 before the first load.
func (m *Manager) Page() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.page
}
