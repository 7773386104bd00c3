package movies

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type mockSource struct {
	NowPlayingFunc func(ctx context.Context, page int) (*Page, error)
}

func (m *mockSource) NowPlaying(ctx context.Context, page int) (*Page, error) {
	if m.NowPlayingFunc != nil {
		return m.NowPlayingFunc(ctx, page)
	}
	return nil, errors.New("not implemented")
}

type recordingDelegate struct {
	ready  int32
	mu     sync.Mutex
	errors []error
}

func (d *recordingDelegate) OnDataReady() { atomic.AddInt32(&d.ready, 1) }

func (d *recordingDelegate) OnError(err error) {
	d.mu.Lock()
	d.errors = append(d.errors, err)
	d.mu.Unlock()
}

func pages(total int) func(ctx context.Context, page int) (*Page, error) {
	return func(ctx context.Context, page int) (*Page, error) {
		return &Page{
			Page:       page,
			TotalPages: total,
			Results: []Movie{
				{ID: page*10 + 1, Title: "a"},
				{ID: page*10 + 2, Title: "b"},
			},
		}, nil
	}
}

func TestFetchMorePagesThroughListing(t *testing.T) {
	d := &recordingDelegate{}
	m := NewManager(&mockSource{NowPlayingFunc: pages(2)}, d, nil)

	if !m.HasMore() {
		t.Error("fresh manager should have more")
	}
	for i := 0; i < 3; i++ {
		if err := m.FetchMore(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if m.Len() != 4 {
		t.Errorf("expected 4 movies, got %d", m.Len())
	}
	if m.HasMore() {
		t.Error("all pages loaded")
	}
	if m.Page() != 2 {
		t.Errorf("expected page 2, got %d", m.Page())
	}
	if atomic.LoadInt32(&d.ready) != 2 {
		t.Errorf("expected OnDataReady per page, got %d", d.ready)
	}
	mv, ok := m.Movie(2)
	if !ok || mv.ID != 21 {
		t.Errorf("movies out of order: %+v", mv)
	}
	if _, ok := m.Movie(4); ok {
		t.Error("index past the end")
	}
	if mv, ok := m.ByID(12); !ok || mv.Title != "b" {
		t.Error("couldn't find movie by id")
	}
}

func TestFetchMoreSkipsDuplicateMovies(t *testing.T) {
	src := &mockSource{NowPlayingFunc: func(ctx context.Context, page int) (*Page, error) {
		// listings shift between requests so page 2 repeats one of page 1
		return &Page{Page: page, TotalPages: 2, Results: []Movie{{ID: page}, {ID: 1}}}, nil
	}}
	m := NewManager(src, nil, nil)
	_ = m.FetchMore(context.Background())
	_ = m.FetchMore(context.Background())
	if m.Len() != 2 {
		t.Errorf("expected duplicates to be dropped, got %d movies", m.Len())
	}
}

func TestFetchMoreErrorKeepsCursor(t *testing.T) {
	boom := errors.New("service unavailable")
	var calls int32
	src := &mockSource{NowPlayingFunc: func(ctx context.Context, page int) (*Page, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, boom
		}
		return pages(5)(ctx, page)
	}}
	d := &recordingDelegate{}
	m := NewManager(src, d, nil)

	if err := m.FetchMore(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected error, got %v", err)
	}
	if len(d.errors) != 1 || atomic.LoadInt32(&d.ready) != 0 {
		t.Error("expected exactly one OnError")
	}
	if m.Page() != 0 {
		t.Error("cursor should not move on failure")
	}
	if err := m.FetchMore(context.Background()); err != nil {
		t.Fatal(err)
	}
	if m.Page() != 1 || m.Len() != 2 {
		t.Error("retry should load page 1")
	}
}

func TestConcurrentFetchMoreCoalesces(t *testing.T) {
	release := make(chan struct{})
	var calls int32
	src := &mockSource{NowPlayingFunc: func(ctx context.Context, page int) (*Page, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return pages(5)(ctx, page)
	}}
	d := &recordingDelegate{}
	m := NewManager(src, d, nil)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.FetchMore(context.Background())
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("expected one page load, got %d", calls)
	}
	if m.Page() != 1 || m.Len() != 2 {
		t.Errorf("expected page 1 loaded once, got page %d with %d movies", m.Page(), m.Len())
	}
	if atomic.LoadInt32(&d.ready) != 1 {
		t.Errorf("delegate should hear about the load once, got %d", d.ready)
	}
}

func TestMoviesReturnsCopy(t *testing.T) {
	m := NewManager(&mockSource{NowPlayingFunc: pages(1)}, nil, nil)
	_ = m.FetchMore(context.Background())
	list := m.Movies()
	list[0].Title = "changed"
	if mv, _ := m.Movie(0); mv.Title == "changed" {
		t.Error("Movies should return a copy")
	}
}

func TestCancelledCallerDoesNotFailSharedLoad(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	var calls int32
	src := &mockSource{NowPlayingFunc: func(ctx context.Context, page int) (*Page, error) {
		atomic.AddInt32(&calls, 1)
		started <- struct{}{}
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return pages(5)(ctx, page)
	}}
	d := &recordingDelegate{}
	m := NewManager(src, d, nil)

	ctx1, cancel1 := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() { first <- m.FetchMore(ctx1) }()
	<-started

	second := make(chan error, 1)
	go func() { second <- m.FetchMore(context.Background()) }()
	time.Sleep(50 * time.Millisecond)

	cancel1()
	select {
	case err := <-first:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("cancelled caller should get its own ctx error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller kept waiting")
	}

	close(release)
	if err := <-second; err != nil {
		t.Errorf("live caller should not see the other caller's cancel, got %v", err)
	}
	if m.Page() != 1 || m.Len() != 2 {
		t.Errorf("page 1 should still load, got page %d with %d movies", m.Page(), m.Len())
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("expected one page load, got %d", calls)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.errors) != 0 {
		t.Errorf("a caller going away is not a load error, got %v", d.errors)
	}
}

func TestFetchMoreTimesOut(t *testing.T) {
	src := &mockSource{NowPlayingFunc: func(ctx context.Context, page int) (*Page, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	d := &recordingDelegate{}
	m := NewManager(src, d, nil)
	m.SetTimeout(20 * time.Millisecond)

	if err := m.FetchMore(context.Background()); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected the load to time out, got %v", err)
	}
	if m.Page() != 0 {
		t.Error("cursor should not move on a timeout")
	}
}
