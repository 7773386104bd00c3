package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/thraxil/nowplaying/loader"
	"github.com/thraxil/nowplaying/movies"
)

func main() {
	logger := newLogger(os.Stderr)
	_ = logger.Log("level", "INFO", "msg", "starting up")

	// read the config file
	var configfile string
	flag.StringVar(&configfile, "config", "./config.json", "JSON config file")
	flag.Parse()

	f, err := loadConfig(configfile)
	if err != nil {
		_ = logger.Log("level", "ERR", "msg", "couldn't read config", "file", configfile, "error", err)
		os.Exit(1)
	}
	s := f.MyConfig()
	if !s.KeyConfigured() {
		_ = logger.Log("level", "WARN", "msg", "no api_key configured, movie api requests will fail")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// results are handed back on one goroutine, like a UI thread
	callbacks := loader.NewSerialExecutor()
	images := loader.New(loader.Options{
		Fetcher: loader.HTTPFetcher{
			Client:    &http.Client{Timeout: s.RequestTimeout},
			MaxBytes:  s.MaxImageBytes,
			UserAgent: s.UserAgent,
		},
		Callbacks:  callbacks,
		Logger:     log.With(logger, "component", "loader"),
		QueueSize:  s.QueueSize,
		Timeout:    s.RequestTimeout,
		Registerer: reg,
	})

	client := movies.NewClient(movies.ClientConfig{
		BaseURL:           s.APIBaseURL,
		ImageBaseURL:      s.ImageBaseURL,
		APIKey:            s.APIKey,
		Language:          s.Language,
		RequestsPerSecond: s.APIRequestsPerSecond,
		HTTPClient:        &http.Client{Timeout: s.RequestTimeout},
	})
	manager := movies.NewManager(client, nil, log.With(logger, "component", "movies"))
	manager.SetTimeout(s.RequestTimeout)

	sc, err := newScreen(manager, images, &s, log.With(logger, "component", "screen"))
	if err != nil {
		_ = logger.Log("level", "ERR", "msg", "couldn't set up screen", "error", err)
		os.Exit(1)
	}
	manager.SetDelegate(sc)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// first page, same as the list appearing
	go func() { _ = manager.FetchMore(ctx) }()

	mux := http.NewServeMux()
	registerHandlers(mux, sitecontext{
		Screen:   sc,
		Cfg:      &s,
		SL:       logger,
		Registry: reg,
	})
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Port),
		Handler:           logRequests(mux, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		_ = logger.Log("level", "INFO", "msg", "listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = logger.Log("level", "ERR", "msg", "server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	_ = logger.Log("level", "INFO", "msg", "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	images.Close()
	callbacks.Close()
}
