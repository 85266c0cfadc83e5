// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package stats exports driver counters: to redis, the way goes daemons
// publish state, and to prometheus or graphite from the go-metrics
// registry.
package stats

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	redigo "github.com/garyburd/redigo/redis"
	"github.com/platinasystems/log"
	"github.com/platinasystems/redis/publisher"
	"github.com/rcrowley/go-metrics"
)

// Publisher stores key/value pairs somewhere other programs can see them.
type Publisher interface {
	Publish(key string, value interface{}) error
	Close() error
}

type goesPublisher struct {
	pub *publisher.Publisher
}

// NewGoesPublisher publishes into the goes redis server.
func NewGoesPublisher() (Publisher, error) {
	pub, err := publisher.New()
	if err != nil {
		return nil, fmt.Errorf("publisher: %w", err)
	}
	return &goesPublisher{pub}, nil
}

func (p *goesPublisher) Publish(key string, value interface{}) (err error) {
	_, err = p.pub.Printf("%s: %v\n", key, value)
	return
}

func (p *goesPublisher) Close() error { return p.pub.Close() }

// RedigoPublisher sets fields of a redis hash on any redis server.
type RedigoPublisher struct {
	Hash string
	conn redigo.Conn
}

func DialRedigo(addr, hash string) (*RedigoPublisher, error) {
	conn, err := redigo.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewRedigoPublisher(conn, hash), nil
}

func NewRedigoPublisher(conn redigo.Conn, hash string) *RedigoPublisher {
	return &RedigoPublisher{Hash: hash, conn: conn}
}

func (p *RedigoPublisher) Publish(key string, value interface{}) error {
	_, err := p.conn.Do("HSET", p.Hash, key, value)
	return err
}

func (p *RedigoPublisher) Close() error { return p.conn.Close() }

type writerPublisher struct {
	w io.Writer
}

// NewWriterPublisher prints "key: value" lines.
func NewWriterPublisher(w io.Writer) Publisher { return writerPublisher{w} }

func (p writerPublisher) Publish(key string, value interface{}) (err error) {
	_, err = fmt.Fprintf(p.w, "%s: %v\n", key, value)
	return
}

func (p writerPublisher) Close() error { return nil }

// Poller publishes counters of a registry that changed since the last poll.
type Poller struct {
	Registry  metrics.Registry
	Publisher Publisher
	Interval  time.Duration

	last map[string]int64
}

// Once publishes every changed counter in name order.
func (p *Poller) Once() error {
	if p.last == nil {
		p.last = make(map[string]int64)
	}
	type kv struct {
		k string
		v int64
	}
	var changed []kv
	p.Registry.Each(func(name string, i interface{}) {
		c, ok := i.(metrics.Counter)
		if !ok {
			return
		}
		v := c.Count()
		if last, found := p.last[name]; !found || last != v {
			changed = append(changed, kv{name, v})
		}
	})
	sort.Slice(changed, func(i, j int) bool { return changed[i].k < changed[j].k })
	for _, x := range changed {
		if err := p.Publisher.Publish(x.k, x.v); err != nil {
			return err
		}
		p.last[x.k] = x.v
	}
	return nil
}

// Run polls until the context is done or publishing fails.
func (p *Poller) Run(ctx context.Context) error {
	t := time.NewTicker(p.Interval)
	defer t.Stop()
	for {
		if err := p.Once(); err != nil {
			log.Print("err", "stats: publish: ", err)
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}
