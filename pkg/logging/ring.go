package logging

import (
	"sync"
	"time"
)

// Entry is a single captured log record.
type Entry struct {
	Time    time.Time
	Level   Level
	Message string
	Fields  []Field
}

// RingSink is a Logger that retains the most recent entries in a fixed
// capacity ring while forwarding everything to a wrapped logger. The
// diagnostics view reads the retained entries through Entries.
type RingSink struct {
	mu      sync.Mutex
	next    Logger
	entries []Entry
	head    int
	size    int
	minimum Level
}

// DefaultRingCapacity bounds the diagnostics buffer when a caller does
// not specify one.
const DefaultRingCapacity = 500

// NewRingSink wraps next with a ring retaining up to capacity entries.
// A non-positive capacity falls back to DefaultRingCapacity.
func NewRingSink(next Logger, capacity int) *RingSink {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	return &RingSink{
		next:    next,
		entries: make([]Entry, capacity),
	}
}

func (r *RingSink) record(level Level, msg string, fields []Field) {
	r.mu.Lock()
	if level >= r.minimum {
		r.entries[r.head] = Entry{
			Time:    time.Now(),
			Level:   level,
			Message: msg,
			Fields:  fields,
		}
		r.head = (r.head + 1) % len(r.entries)
		if r.size < len(r.entries) {
			r.size++
		}
	}
	r.mu.Unlock()
}

// Debug implements Logger interface
func (r *RingSink) Debug(msg string, fields ...Field) {
	r.record(DEBUG, msg, fields)
	r.next.Debug(msg, fields...)
}

// Info implements Logger interface
func (r *RingSink) Info(msg string, fields ...Field) {
	r.record(INFO, msg, fields)
	r.next.Info(msg, fields...)
}

// Warn implements Logger interface
func (r *RingSink) Warn(msg string, fields ...Field) {
	r.record(WARN, msg, fields)
	r.next.Warn(msg, fields...)
}

// Error implements Logger interface
func (r *RingSink) Error(msg string, fields ...Field) {
	r.record(ERROR, msg, fields)
	r.next.Error(msg, fields...)
}

// WithFields implements Logger interface. The returned logger shares the
// same ring so derived loggers contribute to one diagnostics buffer.
func (r *RingSink) WithFields(fields ...Field) Logger {
	return &ringChild{ring: r, next: r.next.WithFields(fields...), fields: fields}
}

// SetLevel sets the minimum level retained in the ring and forwarded.
func (r *RingSink) SetLevel(level Level) {
	r.mu.Lock()
	r.minimum = level
	r.mu.Unlock()
	r.next.SetLevel(level)
}

// Entries returns the retained entries, oldest first.
func (r *RingSink) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Entry, 0, r.size)
	start := r.head - r.size
	if start < 0 {
		start += len(r.entries)
	}
	for i := 0; i < r.size; i++ {
		out = append(out, r.entries[(start+i)%len(r.entries)])
	}
	return out
}

// Clear drops all retained entries.
func (r *RingSink) Clear() {
	r.mu.Lock()
	r.head = 0
	r.size = 0
	r.mu.Unlock()
}

// ringChild keeps WithFields loggers feeding the parent ring.
type ringChild struct {
	ring   *RingSink
	next   Logger
	fields []Field
}

func (c *ringChild) merge(fields []Field) []Field {
	all := make([]Field, 0, len(c.fields)+len(fields))
	all = append(all, c.fields...)
	all = append(all, fields...)
	return all
}

func (c *ringChild) Debug(msg string, fields ...Field) {
	c.ring.record(DEBUG, msg, c.merge(fields))
	c.next.Debug(msg, fields...)
}

func (c *ringChild) Info(msg string, fields ...Field) {
	c.ring.record(INFO, msg, c.merge(fields))
	c.next.Info(msg, fields...)
}

func (c *ringChild) Warn(msg string, fields ...Field) {
	c.ring.record(WARN, msg, c.merge(fields))
	c.next.Warn(msg, fields...)
}

func (c *ringChild) Error(msg string, fields ...Field) {
	c.ring.record(ERROR, msg, c.merge(fields))
	c.next.Error(msg, fields...)
}

func (c *ringChild) WithFields(fields ...Field) Logger {
	return &ringChild{ring: c.ring, next: c.next.WithFields(fields...), fields: c.merge(fields)}
}

func (c *ringChild) SetLevel(level Level) {
	c.next.SetLevel(level)
}
