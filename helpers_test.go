package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/google/uuid"

	"github.com/thraxil/nowplaying/loader"
	"github.com/thraxil/nowplaying/movies"
)

// mockSource serves pages of perPage movies, ids page*100+i
type mockSource struct {
	mu      sync.Mutex
	pages   int
	perPage int
	fail    error
	calls   int
}

func (m *mockSource) NowPlaying(ctx context.Context, page int) (*movies.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.fail != nil {
		return nil, m.fail
	}
	p := &movies.Page{Page: page, TotalPages: m.pages, TotalResults: m.pages * m.perPage}
	for i := 0; i < m.perPage; i++ {
		id := page*100 + i
		p.Results = append(p.Results, movies.Movie{
			ID:           id,
			Title:        fmt.Sprintf("Movie %d", id),
			BackdropPath: fmt.Sprintf("/backdrop-%d.jpg", id),
			PosterPath:   fmt.Sprintf("/poster-%d.jpg", id),
			Overview:     fmt.Sprintf("All about movie %d.", id),
		})
	}
	return p, nil
}

func (m *mockSource) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockImageLoader struct {
	mu        sync.Mutex
	requested []string
	cancelled []loader.Handle
	returnErr error
}

func (m *mockImageLoader) Request(rawURL string, target loader.Size, scale float64, cb loader.Callback) (loader.Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.returnErr != nil {
		return loader.Handle{}, m.returnErr
	}
	m.requested = append(m.requested, rawURL)
	return loader.Handle(uuid.New()), nil
}

func (m *mockImageLoader) Cancel(h loader.Handle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled = append(m.cancelled, h)
	return true
}

func (m *mockImageLoader) Requested() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.requested...)
}

func (m *mockImageLoader) Cancelled() []loader.Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]loader.Handle(nil), m.cancelled...)
}

func testConfig() *siteConfig {
	s := configData{CellWidth: 50, CellHeight: 25, Scale: 2, VisibleRows: 2, PrefetchAhead: 2}.MyConfig()
	return &s
}

func makePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 0, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// imageLoaderFor returns a real loader whose every fetch is answered
// by data, or fails when data is nil.
func imageLoaderFor(data []byte) *loader.Loader {
	return loader.New(loader.Options{
		Fetcher: loader.FetcherFunc(func(ctx context.Context, url string) ([]byte, error) {
			if data == nil {
				return nil, errors.New("connection refused")
			}
			return data, nil
		}),
		Callbacks: loader.InlineExecutor{},
		Logger:    log.NewNopLogger(),
	})
}

// newTestScreen wires a screen to a manager over src, loading the
// first page.
func newTestScreen(t *testing.T, src *mockSource, images imageLoader) (*screen, *movies.Manager) {
	t.Helper()
	m := movies.NewManager(src, nil, log.NewNopLogger())
	s, err := newScreen(m, images, testConfig(), log.NewNopLogger())
	if err != nil {
		t.Fatal(err)
	}
	m.SetDelegate(s)
	return s, m
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
