// Package statsd emits DogStatsD-style metrics over UDP.
package statsd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Sink is the metric surface the services depend on.
type Sink interface {
	Count(name string, value int64, tags map[string]string)
	Gauge(name string, value float64, tags map[string]string)
	Timing(name string, value time.Duration, tags map[string]string)
}

// Config describes how to reach the StatsD agent.
type Config struct {
	Enabled    bool
	Address    string
	Prefix     string
	Logger     *slog.Logger
	GlobalTags map[string]string
}

// Client writes one UDP datagram per metric. It is safe for concurrent use;
// a nil or disabled client drops every metric.
type Client struct {
	prefix     string
	globalTags map[string]string
	logger     *slog.Logger

	mu   sync.Mutex
	conn net.Conn
}

var _ Sink = (*Client)(nil)

// NewClient dials cfg.Address when metrics are enabled.
func NewClient(cfg Config) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		prefix:     strings.Trim(strings.TrimSpace(cfg.Prefix), "."),
		globalTags: cleanTags(cfg.GlobalTags),
		logger:     logger.With("component", "statsd"),
	}

	address := strings.TrimSpace(cfg.Address)
	if !cfg.Enabled || address == "" {
		return c, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := (&net.Dialer{}).DialContext(ctx, "udp", address)
	if err != nil {
		return nil, fmt.Errorf("statsd dial %s: %w", address, err)
	}
	c.conn = conn
	return c, nil
}

// Enabled reports whether metrics are actually sent.
func (c *Client) Enabled() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Count increments a counter.
func (c *Client) Count(name string, value int64, tags map[string]string) {
	c.send(name, strconv.FormatInt(value, 10), "c", tags)
}

// Gauge records an absolute value.
func (c *Client) Gauge(name string, value float64, tags map[string]string) {
	c.send(name, strconv.FormatFloat(value, 'f', -1, 64), "g", tags)
}

// Timing records a duration in milliseconds.
func (c *Client) Timing(name string, value time.Duration, tags map[string]string) {
	ms := float64(value) / float64(time.Millisecond)
	c.send(name, strconv.FormatFloat(ms, 'f', -1, 64), "ms", tags)
}

// Close releases the UDP socket. Later metrics are dropped.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) send(name, value, kind string, tags map[string]string) {
	if c == nil {
		return
	}
	line := c.line(name, value, kind, tags)
	if line == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return
	}
	if _, err := c.conn.Write([]byte(line)); err != nil {
		c.logger.Debug("statsd write failed", "metric", name, "error", err)
	}
}

// line renders name:value|kind|#k:v,... or "" when the name is empty.
func (c *Client) line(name, value, kind string, tags map[string]string) string {
	metric := metricName(c.prefix, name)
	if metric == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString(metric)
	b.WriteByte(':')
	b.WriteString(value)
	b.WriteByte('|')
	b.WriteString(kind)
	b.WriteString(renderTags(c.globalTags, tags))
	return b.String()
}

func metricName(prefix, name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	n = strings.NewReplacer(" ", "_", "/", "_").Replace(n)
	for strings.Contains(n, "..") {
		n = strings.ReplaceAll(n, "..", ".")
	}
	n = strings.Trim(n, ".")
	switch {
	case prefix == "":
		return n
	case n == "":
		return prefix
	}
	return prefix + "." + n
}

// renderTags merges global and local tags (local wins) in key order.
func renderTags(global, local map[string]string) string {
	merged := cleanTags(global)
	for k, v := range cleanTags(local) {
		merged[k] = v
	}
	if len(merged) == 0 {
		return ""
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ":" + merged[k]
	}
	return "|#" + strings.Join(parts, ",")
}

func cleanTags(tags map[string]string) map[string]string {
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		if key := strings.TrimSpace(k); key != "" {
			out[key] = strings.TrimSpace(v)
		}
	}
	return out
}
