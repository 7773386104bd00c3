package main

import (
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/thraxil/nowplaying/loader"
	"github.com/thraxil/nowplaying/movies"
)

type sitecontext struct {
	Screen   *screen
	Cfg      *siteConfig
	SL       log.Logger
	Registry *prometheus.Registry
}

func makeHandler(fn func(http.ResponseWriter, *http.Request, sitecontext), ctx sitecontext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fn(w, r, ctx)
	}
}

func registerHandlers(mux *http.ServeMux, ctx sitecontext) {
	mux.HandleFunc("GET /{$}", makeHandler(listHandler, ctx))
	mux.HandleFunc("GET /more/", makeHandler(moreHandler, ctx))
	mux.HandleFunc("GET /thumb/{id}/", makeHandler(thumbHandler, ctx))
	mux.HandleFunc("GET /movie/{id}/", makeHandler(movieHandler, ctx))
	mux.HandleFunc("GET /favicon.ico", faviconHandler)
	if ctx.Registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(ctx.Registry, promhttp.HandlerOpts{}))
	}
}

type row struct {
	Index int
	Movie movies.Movie
}

type listPage struct {
	Title      string
	Rows       []row
	Error      string
	NextOffset int
	HasNext    bool
	HasMore    bool
}

func listHandler(w http.ResponseWriter, r *http.Request, ctx sitecontext) {
	offset, _ := strconv.Atoi(r.FormValue("offset"))
	if offset < 0 {
		offset = 0
	}
	shown := ctx.Screen.Show(r.Context(), offset)

	p := listPage{
		Title:   "Now Playing",
		HasMore: ctx.Screen.list.HasMore(),
	}
	for i, mv := range shown {
		p.Rows = append(p.Rows, row{Index: offset + i, Movie: mv})
	}
	p.NextOffset = offset + len(shown)
	p.HasNext = p.NextOffset < ctx.Screen.list.Len()
	if err := ctx.Screen.LastError(); err != nil {
		p.Error = err.Error()
	} else if len(shown) == 0 && !ctx.Screen.Ready() {
		p.Error = "Unable to fetch list of movies"
	}

	t, err := template.New("list").Parse(listTemplate)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = t.Execute(w, p)
}

func moreHandler(w http.ResponseWriter, r *http.Request, ctx sitecontext) {
	offset, _ := strconv.Atoi(r.FormValue("offset"))
	if err := ctx.Screen.list.FetchMore(r.Context()); err != nil {
		_ = ctx.SL.Log("level", "ERR", "msg", "load more failed", "error", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	http.Redirect(w, r, "/?offset="+strconv.Itoa(offset), http.StatusFound)
}

func thumbHandler(w http.ResponseWriter, r *http.Request, ctx sitecontext) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid movie id", http.StatusNotFound)
		return
	}
	if t, ok := ctx.Screen.Thumbnail(id); ok {
		if r.Header.Get("If-None-Match") == t.Etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Expires", time.Now().Add(time.Hour*24).Format(time.RFC1123))
		w.Header().Set("Etag", t.Etag)
		_, _ = w.Write(t.Data)
		return
	}
	mv, ok := ctx.Screen.list.ByID(id)
	if !ok {
		http.Error(w, "unknown movie", http.StatusNotFound)
		return
	}
	if ferr := ctx.Screen.Failure(id); ferr != nil {
		http.Error(w, ferr.Error(), http.StatusBadGateway)
		return
	}
	if _, ok := mv.BackdropURL(movies.Medium); !ok {
		http.Error(w, "no image for this movie", http.StatusNotFound)
		return
	}
	if err := ctx.Screen.load(mv); err != nil {
		http.Error(w, err.Error(), statusForLoadError(err))
		return
	}
	w.Header().Set("Retry-After", "1")
	http.Error(w, "thumbnail loading", http.StatusNotFound)
}

type moviePage struct {
	Title     string
	Movie     movies.Movie
	PosterURL string
}

func movieHandler(w http.ResponseWriter, r *http.Request, ctx sitecontext) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid movie id", http.StatusNotFound)
		return
	}
	mv, ok := ctx.Screen.list.ByID(id)
	if !ok {
		http.Error(w, "unknown movie", http.StatusNotFound)
		return
	}
	// warm the backdrop the page shows
	if err := ctx.Screen.load(mv); err != nil {
		_ = ctx.SL.Log("level", "WARN", "msg", "couldn't start backdrop load", "movie", id, "error", err)
	}
	p := moviePage{Title: mv.Title, Movie: mv}
	p.PosterURL, _ = mv.PosterURL(movies.Large)

	t, err := template.New("movie").Parse(movieTemplate)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = t.Execute(w, p)
}

func statusForLoadError(err error) int {
	switch {
	case errors.Is(err, loader.ErrQueueFull), errors.Is(err, loader.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, loader.ErrInvalidInput):
		// the url came from the movie api, so it's their problem
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func faviconHandler(w http.ResponseWriter, r *http.Request) {
	// just give it nothing to make it go away
	_, _ = w.Write(nil)
}

const listTemplate = `
<html>
<head>
<title>{{.Title}}</title>
<link rel="stylesheet" href="//maxcdn.bootstrapcdn.com/bootstrap/3.3.1/css/bootstrap.min.css" />
</head>

<body>
<div class="container">
<h1>{{.Title}}</h1>

{{if .Error}}
<div class="alert alert-danger">{{.Error}}</div>
{{end}}

<div class="row">
{{ range .Rows }}
<div class="col-sm-4" id="{{.Movie.ID}}">
	<a href="/movie/{{.Movie.ID}}/"><img src="/thumb/{{.Movie.ID}}/" alt="{{.Movie.Title}}" class="img-responsive" /></a>
	<h4><a href="/movie/{{.Movie.ID}}/">{{.Movie.Title}}</a></h4>
	<p class="text-muted">{{.Movie.ReleaseDate}} &middot; {{printf "%.1f" .Movie.VoteAverage}}</p>
</div>
{{ end }}
</div>

<ul class="pager">
{{if .HasNext}}
	<li><a href="/?offset={{.NextOffset}}">Next</a></li>
{{else if .HasMore}}
	<li><a href="/more/?offset={{.NextOffset}}">Load more</a></li>
{{end}}
</ul>
</div>
</body>
</html>
`

const movieTemplate = `
<html>
<head>
<title>{{.Title}}</title>
<link rel="stylesheet" href="//maxcdn.bootstrapcdn.com/bootstrap/3.3.1/css/bootstrap.min.css" />
</head>

<body>
<div class="container">
<p><a href="/">&larr; Now Playing</a></p>
<h1>{{.Movie.Title}}</h1>

<img src="/thumb/{{.Movie.ID}}/" alt="{{.Movie.Title}}" class="img-responsive" />

<div class="row">
{{if .PosterURL}}
<div class="col-sm-4">
	<img src="{{.PosterURL}}" alt="{{.Movie.Title}} poster" class="img-responsive" />
</div>
{{end}}
<div class="col-sm-8">
	<p class="text-muted">{{.Movie.ReleaseDate}} &middot; {{printf "%.1f" .Movie.VoteAverage}}</p>
	<p>{{.Movie.Overview}}</p>
</div>
</div>
</div>
</body>
</html>
`
