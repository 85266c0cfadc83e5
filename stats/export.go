// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stats

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	graphite "github.com/cyberdelia/go-metrics-graphite"
	mp "github.com/nbrownus/go-metrics-prometheus"
	"github.com/platinasystems/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rcrowley/go-metrics"
)

type PrometheusConfig struct {
	Namespace string        `yaml:"namespace"`
	Subsystem string        `yaml:"subsystem"`
	Listen    string        `yaml:"listen"`
	Path      string        `yaml:"path"`
	Interval  time.Duration `yaml:"interval"`
}

// PrometheusHandler bridges the registry into a fresh prometheus registry
// until ctx is done and returns its scrape handler.
func PrometheusHandler(ctx context.Context, r metrics.Registry, c *PrometheusConfig) http.Handler {
	pr := prometheus.NewRegistry()
	p := mp.NewPrometheusProvider(r, c.Namespace, c.Subsystem, pr, c.Interval)
	go updatePrometheus(ctx, p, c.Interval)
	return promhttp.HandlerFor(pr, promhttp.HandlerOpts{})
}

func updatePrometheus(ctx context.Context, p *mp.PrometheusConfig, d time.Duration) {
	if d == 0 {
		d = time.Second
	}
	t := time.NewTicker(d)
	defer t.Stop()
	for {
		if err := p.UpdatePrometheusMetricsOnce(); err != nil {
			log.Print("err", "prometheus: ", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// ServePrometheus serves the scrape endpoint until the context is done.
func ServePrometheus(ctx context.Context, r metrics.Registry, c *PrometheusConfig) error {
	if c.Listen == "" {
		return errors.New("prometheus: listen address should not be empty")
	}
	if c.Path == "" {
		c.Path = "/metrics"
	}
	if c.Interval == 0 {
		c.Interval = time.Second
	}
	mux := http.NewServeMux()
	mux.Handle(c.Path, PrometheusHandler(ctx, r, c))
	srv := &http.Server{Addr: c.Listen, Handler: mux}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	log.Printf("info", "prometheus stats listening on %s at %s", c.Listen, c.Path)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("prometheus: %w", err)
	}
	return nil
}

type GraphiteConfig struct {
	Protocol string        `yaml:"protocol"`
	Host     string        `yaml:"host"`
	Prefix   string        `yaml:"prefix"`
	Interval time.Duration `yaml:"interval"`
}

// RunGraphite flushes the registry to a graphite server every interval
// until the context is done.
func RunGraphite(ctx context.Context, r metrics.Registry, c *GraphiteConfig) error {
	if c.Host == "" {
		return errors.New("graphite: host can not be empty")
	}
	if c.Protocol == "" {
		c.Protocol = "tcp"
	}
	if c.Interval == 0 {
		c.Interval = 10 * time.Second
	}
	addr, err := net.ResolveTCPAddr(c.Protocol, c.Host)
	if err != nil {
		return fmt.Errorf("graphite: %w", err)
	}
	gc := graphite.Config{
		Addr:          addr,
		Registry:      r,
		FlushInterval: c.Interval,
		DurationUnit:  time.Nanosecond,
		Prefix:        c.Prefix,
		Percentiles:   []float64{0.5, 0.75, 0.95, 0.99, 0.999},
	}
	log.Printf("info", "graphite stats to %s every %s, prefix %q", addr, c.Interval, c.Prefix)
	t := time.NewTicker(c.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := graphite.Once(gc); err != nil {
				log.Print("err", "graphite: ", err)
			}
		}
	}
}
