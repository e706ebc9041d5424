/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package telemetry sends opt-in anonymous usage events and crash reports.
// Events never carry character names, folder names or macro text.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	applog "ximacro/internal/log"
	"ximacro/internal/version"
)

// Event names.
const (
	EventMacrosLoaded   = "macros_loaded"
	EventMacrosSaved    = "macros_saved"
	EventMacrosImported = "macros_imported"
	EventMacrosExported = "macros_exported"
)

// allowedProps lists the property keys an event may carry; others are dropped.
var allowedProps = map[string]bool{
	"pages":   true,
	"books":   true,
	"ms":      true,
	"ok":      true,
	"format":  true,
	"restore": true,
}

// Config enables and addresses the two upload channels. Nothing is sent unless
// OptIn is true and the matching URL is set.
//
// FromEnv reads XIM_TELEMETRY_OPT_IN, XIM_TELEMETRY_URL, XIM_CRASH_UPLOAD_URL,
// XIM_TELEMETRY_TIMEOUT_MS (default 1500) and XIM_TELEMETRY_DEBUG.
type Config struct {
	OptIn     bool
	EventsURL string
	CrashURL  string
	// Timeout bounds each HTTP request.
	Timeout time.Duration
	// DebugLogging logs every send attempt at debug level.
	DebugLogging bool
}

const defaultTimeout = 1500 * time.Millisecond

func FromEnv() Config {
	cfg := Config{
		OptIn:        truthy(os.Getenv("XIM_TELEMETRY_OPT_IN")),
		EventsURL:    strings.TrimSpace(os.Getenv("XIM_TELEMETRY_URL")),
		CrashURL:     strings.TrimSpace(os.Getenv("XIM_CRASH_UPLOAD_URL")),
		Timeout:      defaultTimeout,
		DebugLogging: os.Getenv("XIM_TELEMETRY_DEBUG") != "",
	}
	if ms, err := strconv.Atoi(strings.TrimSpace(os.Getenv("XIM_TELEMETRY_TIMEOUT_MS"))); err == nil && ms > 0 {
		cfg.Timeout = time.Duration(ms) * time.Millisecond
	}
	return cfg
}

func truthy(v string) bool {
	v = strings.TrimSpace(v)
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return strings.EqualFold(v, "yes") || strings.EqualFold(v, "on")
}

// Client queues events for a single background sender. A full queue drops the event.
type Client struct {
	cfg     Config
	log     *slog.Logger
	http    *http.Client
	queue   chan map[string]any
	pending atomic.Int64
	stop    chan struct{}
	once    sync.Once
}

var (
	defaultMu     sync.Mutex
	defaultClient *Client
)

// InitDefault installs a client built from the environment unless one exists.
func InitDefault() {
	defaultMu.Lock()
	if defaultClient == nil {
		defaultClient = New(FromEnv())
	}
	defaultMu.Unlock()
}

// NewDefault swaps the package client for one built from cfg and stops the old one.
func NewDefault(cfg Config) {
	next := New(cfg)
	defaultMu.Lock()
	prev := defaultClient
	defaultClient = next
	defaultMu.Unlock()
	if prev != nil {
		prev.Close()
	}
}

// Default returns the package client, creating it from the environment on first use.
func Default() *Client {
	InitDefault()
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultClient
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := &Client{
		cfg:   cfg,
		log:   applog.WithComponent("telemetry"),
		http:  &http.Client{Timeout: cfg.Timeout},
		queue: make(chan map[string]any, 64),
		stop:  make(chan struct{}),
	}
	go c.run()
	return c
}

// Enabled reports whether events are sent.
func (c *Client) Enabled() bool { return c != nil && c.cfg.OptIn && c.cfg.EventsURL != "" }

func Enabled() bool { return Default().Enabled() }

// Event queues name with the allowed subset of props plus version and platform.
func (c *Client) Event(name string, props map[string]any) {
	if name == "" || !c.Enabled() {
		return
	}
	ev := make(map[string]any, len(props)+5)
	for k, v := range props {
		if allowedProps[k] {
			ev[k] = v
		}
	}
	ev["name"] = name
	ev["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	ev["version"] = version.String()
	ev["os"] = runtime.GOOS
	ev["arch"] = runtime.GOARCH

	c.pending.Add(1)
	select {
	case c.queue <- ev:
	default:
		c.pending.Add(-1)
	}
}

func Event(name string, props map[string]any) { Default().Event(name, props) }

// MacrosLoaded records a successful collection load.
func (c *Client) MacrosLoaded(pages, books int) {
	c.Event(EventMacrosLoaded, map[string]any{"pages": pages, "books": books})
}

// MacrosSaved records a commit attempt and its duration.
func (c *Client) MacrosSaved(pages int, took time.Duration, ok bool) {
	c.Event(EventMacrosSaved, map[string]any{"pages": pages, "ms": took.Milliseconds(), "ok": ok})
}

// MacrosImported records an archive or snapshot import.
func (c *Client) MacrosImported(pages int, format string, restore bool) {
	c.Event(EventMacrosImported, map[string]any{"pages": pages, "format": format, "restore": restore})
}

// MacrosExported records an archive export.
func (c *Client) MacrosExported(pages int, format string) {
	c.Event(EventMacrosExported, map[string]any{"pages": pages, "format": format})
}

// Flush blocks until the queue is drained, ctx is done or half a second has passed.
func (c *Client) Flush(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for c.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
	}
}

// Close stops the sender. Queued events are dropped.
func (c *Client) Close() { c.once.Do(func() { close(c.stop) }) }

func (c *Client) run() {
	for {
		select {
		case <-c.stop:
			return
		case ev := <-c.queue:
			body, err := json.Marshal(ev)
			if err == nil {
				err = c.post(context.Background(), c.cfg.EventsURL, "application/json", body)
			}
			c.debug("event", ev["name"], err)
			c.pending.Add(-1)
		}
	}
}

// post sends body and discards the response.
func (c *Client) post(ctx context.Context, url, contentType string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) debug(kind string, name any, err error) {
	if !c.cfg.DebugLogging {
		return
	}
	if err != nil {
		c.log.Debug("telemetry send failed", slog.String("kind", kind), slog.Any("name", name), slog.Any("err", err))
		return
	}
	c.log.Debug("telemetry sent", slog.String("kind", kind), slog.Any("name", name))
}

// UploadCrash posts report as text when opted in. It blocks for at most Timeout, since
// the caller is about to exit.
func (c *Client) UploadCrash(report []byte) {
	if c == nil || !c.cfg.OptIn || c.cfg.CrashURL == "" {
		return
	}
	err := c.post(context.Background(), c.cfg.CrashURL, "text/plain; charset=utf-8", report)
	c.debug("crash", "report", err)
}

func UploadCrash(report []byte) { Default().UploadCrash(report) }
