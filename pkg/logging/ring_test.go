package logging

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRingFixture(capacity int) (*RingSink, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewRingSink(NewWriterLogger(&buf), capacity), &buf
}

func TestRingRetainsEntriesOldestFirst(t *testing.T) {
	ring, _ := newRingFixture(10)

	ring.Info("first")
	ring.Warn("second")
	ring.Error("third")

	entries := ring.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "first", entries[0].Message)
	assert.Equal(t, INFO, entries[0].Level)
	assert.Equal(t, "second", entries[1].Message)
	assert.Equal(t, WARN, entries[1].Level)
	assert.Equal(t, "third", entries[2].Message)
	assert.Equal(t, ERROR, entries[2].Level)
}

func TestRingEvictsOldestAtCapacity(t *testing.T) {
	ring, _ := newRingFixture(3)

	for i := 0; i < 5; i++ {
		ring.Info(fmt.Sprintf("entry-%d", i))
	}

	entries := ring.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "entry-2", entries[0].Message)
	assert.Equal(t, "entry-4", entries[2].Message)
}

func TestRingForwardsToWrappedLogger(t *testing.T) {
	ring, buf := newRingFixture(10)

	ring.Info("forwarded", String("key", "value"))

	assert.Contains(t, buf.String(), "forwarded")
	assert.Contains(t, buf.String(), "value")
}

func TestRingRespectsMinimumLevel(t *testing.T) {
	ring, _ := newRingFixture(10)
	ring.SetLevel(WARN)

	ring.Debug("dropped")
	ring.Info("dropped too")
	ring.Warn("kept")

	entries := ring.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "kept", entries[0].Message)
}

func TestRingClear(t *testing.T) {
	ring, _ := newRingFixture(10)

	ring.Info("one")
	ring.Info("two")
	ring.Clear()

	assert.Empty(t, ring.Entries())

	ring.Info("after clear")
	require.Len(t, ring.Entries(), 1)
}

func TestDerivedLoggersShareTheRing(t *testing.T) {
	ring, buf := newRingFixture(10)

	child := ring.WithFields(String("component", "dispatcher"))
	grandchild := child.WithFields(String("request", "req-1"))

	child.Info("from child")
	grandchild.Warn("from grandchild")

	entries := ring.Entries()
	require.Len(t, entries, 2)

	// Derived fields travel with the retained entry.
	require.Len(t, entries[0].Fields, 1)
	assert.Equal(t, "component", entries[0].Fields[0].Key)
	require.Len(t, entries[1].Fields, 2)

	// And forwarding still reaches the wrapped logger.
	lines := strings.Count(strings.TrimSpace(buf.String()), "\n") + 1
	assert.Equal(t, 2, lines)
}

func TestRingDefaultCapacity(t *testing.T) {
	ring := NewRingSink(NewWriterLogger(&bytes.Buffer{}), 0)

	for i := 0; i < DefaultRingCapacity+50; i++ {
		ring.Info("entry")
	}
	assert.Len(t, ring.Entries(), DefaultRingCapacity)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel("warning"))
	assert.Equal(t, ERROR, ParseLevel("ERROR"))
	assert.Equal(t, INFO, ParseLevel(""))
	assert.Equal(t, INFO, ParseLevel("bogus"))
}
