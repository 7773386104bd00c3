// Package loader fetches and decodes images for list cells. Requests
// for the same URL share one fetch, fetches run one at a time in
// submission order, and every live request gets exactly one result on
// the callback executor.
package loader

import (
	"context"
	"image"
	"math"
	"net/url"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
)

const (
	defaultQueueSize = 64
	defaultTimeout   = 15 * time.Second

	// largest target side, in pixels, a request may ask for
	maxDimension = 1 << 14
)

// Handle identifies one Request. The zero Handle is never issued.
type Handle uuid.UUID

func (h Handle) String() string { return uuid.UUID(h).String() }

func (h Handle) IsZero() bool { return h == Handle{} }

// Size is a target size in points; it is multiplied by the request's
// scale to get pixels.
type Size struct {
	Width  float64
	Height float64
}

func (s Size) pixels(scale float64) image.Point {
	return image.Pt(int(math.Ceil(s.Width*scale)), int(math.Ceil(s.Height*scale)))
}

// Result is what a Callback receives. Exactly one of Image and Err is set.
type Result struct {
	Handle Handle
	URL    string
	Image  image.Image
	Err    error
}

type Callback func(Result)

type state int

const (
	statePending state = iota
	stateInFlight
	stateCompleted
	stateCancelled
)

func (s state) String() string {
	return [...]string{"pending", "in-flight", "completed", "cancelled"}[s]
}

type request struct {
	handle Handle
	url    string
	target Size
	scale  float64
	state  state
	cb     Callback
	fetch  *fetch
}

// one per URL in the in-flight map
type fetch struct {
	url     string
	px      image.Point
	waiters []*request
	started bool
}

// Options configures a Loader. Zero values get defaults.
type Options struct {
	Fetcher Fetcher
	Decoder Decoder
	// Callbacks is where results are delivered. When nil the loader
	// starts its own SerialExecutor and closes it on Close.
	Callbacks  Executor
	Logger     log.Logger
	QueueSize  int
	Timeout    time.Duration
	Registerer prometheus.Registerer
}

// Loader owns one serial worker goroutine for its whole lifetime.
type Loader struct {
	fetcher   Fetcher
	decoder   Decoder
	callbacks Executor
	owned     *SerialExecutor
	logger    log.Logger
	timeout   time.Duration
	m         *metrics

	mu       sync.Mutex
	inflight map[string]*fetch
	requests map[Handle]*request

	queue     chan *fetch
	closed    *atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

func New(opts Options) *Loader {
	l := &Loader{
		fetcher:   opts.Fetcher,
		decoder:   opts.Decoder,
		callbacks: opts.Callbacks,
		logger:    opts.Logger,
		timeout:   opts.Timeout,
		m:         newMetrics(opts.Registerer),
		inflight:  make(map[string]*fetch),
		requests:  make(map[Handle]*request),
		closed:    atomic.NewBool(false),
		done:      make(chan struct{}),
	}
	if l.fetcher == nil {
		l.fetcher = HTTPFetcher{}
	}
	if l.decoder == nil {
		l.decoder = StandardDecoder{}
	}
	if l.callbacks == nil {
		l.owned = NewSerialExecutor()
		l.callbacks = l.owned
	}
	if l.logger == nil {
		l.logger = log.NewNopLogger()
	}
	if l.timeout <= 0 {
		l.timeout = defaultTimeout
	}
	size := opts.QueueSize
	if size < 1 {
		size = defaultQueueSize
	}
	l.queue = make(chan *fetch, size)
	go l.run()
	return l
}

func validate(rawURL string, target Size, scale float64, cb Callback) error {
	if rawURL == "" {
		return invalid("empty url")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return invalid("bad url %q: %v", rawURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return invalid("url %q is not absolute", rawURL)
	}
	if !(target.Width > 0 && target.Height > 0) {
		return invalid("target size %vx%v must be positive", target.Width, target.Height)
	}
	if scale < 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return invalid("bad scale %v", scale)
	}
	if scale == 0 {
		scale = 1
	}
	if target.Width*scale > maxDimension || target.Height*scale > maxDimension {
		return invalid("target size %vx%v at %vx is larger than %d pixels", target.Width, target.Height, scale, maxDimension)
	}
	if cb == nil {
		return invalid("nil callback")
	}
	return nil
}

// Request schedules a fetch of rawURL, or attaches to the one already
// in flight for it, and returns immediately. A scale of 0 means 1.
func (l *Loader) Request(rawURL string, target Size, scale float64, cb Callback) (Handle, error) {
	if err := validate(rawURL, target, scale, cb); err != nil {
		return Handle{}, err
	}
	if scale == 0 {
		scale = 1
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed.Load() {
		return Handle{}, ErrClosed
	}

	r := &request{
		handle: Handle(uuid.New()),
		url:    rawURL,
		target: target,
		scale:  scale,
		state:  statePending,
		cb:     cb,
	}
	if f, ok := l.inflight[rawURL]; ok {
		if f.started {
			r.state = stateInFlight
		}
		r.fetch = f
		f.waiters = append(f.waiters, r)
		l.requests[r.handle] = r
		l.m.requests.Inc()
		l.m.deduplicated.Inc()
		return r.handle, nil
	}

	f := &fetch{url: rawURL, px: target.pixels(scale), waiters: []*request{r}}
	select {
	case l.queue <- f:
	default:
		_ = l.logger.Log("level", "WARN", "msg", "image queue full, rejecting request", "url", rawURL)
		return Handle{}, ErrQueueFull
	}
	r.fetch = f
	l.inflight[rawURL] = f
	l.requests[r.handle] = r
	l.m.requests.Inc()
	l.m.queueLength.Inc()
	return r.handle, nil
}

// Cancel suppresses delivery to h. The fetch itself keeps going if
// other requests are waiting on it; a queued fetch with nobody left
// waiting is skipped by the worker. Reports whether h was live.
func (l *Loader) Cancel(h Handle) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.requests[h]
	if !ok {
		return false
	}
	delete(l.requests, h)
	r.state = stateCancelled
	if f := r.fetch; f != nil {
		for i, w := range f.waiters {
			if w == r {
				f.waiters = append(f.waiters[:i], f.waiters[i+1:]...)
				break
			}
		}
	}
	l.m.cancelled.Inc()
	return true
}

// Pending is the number of requests not yet delivered or cancelled.
func (l *Loader) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.requests)
}

// InFlight reports whether a fetch for rawURL is queued or running.
func (l *Loader) InFlight(rawURL string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.inflight[rawURL]
	return ok
}

// Close stops accepting requests, lets the worker finish what is
// queued and waits for it. Results still get delivered.
func (l *Loader) Close() {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed.Store(true)
		close(l.queue)
		l.mu.Unlock()
	})
	<-l.done
	if l.owned != nil {
		l.owned.Close()
	}
}

func (l *Loader) run() {
	defer close(l.done)
	for f := range l.queue {
		l.m.queueLength.Dec()
		l.process(f)
	}
}

func (l *Loader) process(f *fetch) {
	l.mu.Lock()
	if len(f.waiters) == 0 {
		delete(l.inflight, f.url)
		l.mu.Unlock()
		l.m.fetches.WithLabelValues("skipped").Inc()
		_ = l.logger.Log("level", "INFO", "msg", "skipping fetch with no waiters", "url", f.url)
		return
	}
	f.started = true
	for _, r := range f.waiters {
		r.state = stateInFlight
	}
	l.mu.Unlock()

	t0 := time.Now()
	img, err := l.load(f)
	l.m.fetchDuration.Observe(time.Since(t0).Seconds())
	if err != nil {
		l.m.fetches.WithLabelValues(err.(*FetchError).Kind.String()).Inc()
		_ = l.logger.Log("level", "ERR", "msg", "image fetch failed", "url", f.url, "error", err)
	} else {
		l.m.fetches.WithLabelValues("ok").Inc()
		_ = l.logger.Log("level", "INFO", "msg", "fetched image", "url", f.url, "time", time.Since(t0))
	}

	l.mu.Lock()
	delete(l.inflight, f.url)
	waiters := f.waiters
	f.waiters = nil
	for _, r := range waiters {
		r.fetch = nil
	}
	l.mu.Unlock()

	for _, r := range waiters {
		res := Result{Handle: r.handle, URL: f.url, Image: img, Err: err}
		l.callbacks.Execute(func() { l.deliver(r, res) })
	}
}

func (l *Loader) load(f *fetch) (image.Image, error) {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	data, err := l.fetcher.Fetch(ctx, f.url)
	if err != nil {
		return nil, &FetchError{Kind: KindNetwork, URL: f.url, Err: err}
	}
	img, err := l.decoder.Decode(data, f.px)
	if err != nil {
		return nil, &FetchError{Kind: KindDecode, URL: f.url, Err: err}
	}
	return img, nil
}

// deliver runs on the callback executor. A Cancel that lands between
// the fetch finishing and this running still wins.
func (l *Loader) deliver(r *request, res Result) {
	l.mu.Lock()
	if r.state == stateCancelled {
		l.mu.Unlock()
		return
	}
	r.state = stateCompleted
	delete(l.requests, r.handle)
	l.mu.Unlock()
	r.cb(res)
}
