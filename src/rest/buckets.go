package rest

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Bucket mirrors the X-RateLimit-* response headers for one server-side
// rate limit bucket.
type Bucket struct {
	ID        string
	Limit     int64
	Remaining int64
	ResetAt   time.Time
	Global    bool
}

type bucketEntry struct {
	mu sync.Mutex
	Bucket
}

// bucketTable is shared by every call site of the client. The outer lock
// only guards map membership; field updates lock a single entry so
// concurrent callers on different buckets never contend.
type bucketTable struct {
	mu      sync.Mutex
	entries map[string]*bucketEntry
}

func newBucketTable() *bucketTable {
	return &bucketTable{entries: make(map[string]*bucketEntry)}
}

func (t *bucketTable) entry(id string) *bucketEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		e = &bucketEntry{Bucket: Bucket{ID: id}}
		t.entries[id] = e
	}
	return e
}

func (t *bucketTable) record(id string, headers http.Header) {
	e := t.entry(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	if limit, err := strconv.ParseInt(headers.Get("X-RateLimit-Limit"), 10, 64); err == nil {
		e.Limit = limit
	}
	if remaining, err := strconv.ParseInt(headers.Get("X-RateLimit-Remaining"), 10, 64); err == nil {
		e.Remaining = remaining
	}
	if reset, err := strconv.ParseFloat(headers.Get("X-RateLimit-Reset"), 64); err == nil {
		sec := int64(reset)
		nsec := int64((reset - float64(sec)) * float64(time.Second))
		e.ResetAt = time.Unix(sec, nsec)
	}
	e.Global = headers.Get("X-RateLimit-Global") == "1"
}

func (t *bucketTable) snapshot() []Bucket {
	t.mu.Lock()
	entries := make([]*bucketEntry, 0, len(t.entries))
	for _, e := range t.entries {
		entries = append(entries, e)
	}
	t.mu.Unlock()

	buckets := make([]Bucket, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		buckets = append(buckets, e.Bucket)
		e.mu.Unlock()
	}
	return buckets
}
