package compiler

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gogpu/clon12/internal/hash"
	"github.com/gogpu/clon12/internal/metrics"
)

// ShaderCache is the on-disk build cache keyed by a 128-bit hash (spec.md
// §4.3 step 2-3, §6 "shader cache handle keyed by driver+compiler
// version"). In-memory lookups are checked first; misses fall through to
// disk, and disk misses fall through to the caller's build function.
//
// No library in the example pack provides an on-disk content-addressed
// cache, so this is built directly on os/path-filepath (justified in
// DESIGN.md: no suitable third-party cache library is grounded anywhere in
// the corpus for this narrow a need).
type ShaderCache struct {
	dir string

	mu  sync.Mutex
	mem map[hash.Key128][]byte

	inflight map[hash.Key128]*buildCall
}

type buildCall struct {
	done   chan struct{}
	binary []byte
	err    error
}

// NewShaderCache creates a cache rooted at dir (created if missing).
func NewShaderCache(dir string) (*ShaderCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &ShaderCache{dir: dir, mem: make(map[hash.Key128][]byte), inflight: make(map[hash.Key128]*buildCall)}, nil
}

func (c *ShaderCache) path(key hash.Key128) string {
	return filepath.Join(c.dir, key.String()+".bin")
}

// Lookup returns the cached binary for key, checking memory then disk.
func (c *ShaderCache) Lookup(key hash.Key128) ([]byte, bool) {
	c.mu.Lock()
	if b, ok := c.mem[key]; ok {
		c.mu.Unlock()
		return b, true
	}
	c.mu.Unlock()

	b, err := os.ReadFile(c.path(key))
	if err != nil {
		return nil, false
	}
	c.mu.Lock()
	c.mem[key] = b
	c.mu.Unlock()
	return b, true
}

// Store writes binary into both the memory and disk cache under key.
func (c *ShaderCache) Store(key hash.Key128, binary []byte) error {
	c.mu.Lock()
	c.mem[key] = binary
	c.mu.Unlock()
	return os.WriteFile(c.path(key), binary, 0o644)
}

// GetOrBuild coalesces concurrent callers building the same key (spec.md
// §9 "concurrent identical builds should share one compile" - decided in
// DESIGN.md): the first caller for a given key runs build; callers that
// arrive while it is in flight block on its result instead of rebuilding.
func (c *ShaderCache) GetOrBuild(key hash.Key128, build func() ([]byte, error)) ([]byte, error) {
	if b, ok := c.Lookup(key); ok {
		metrics.CompileCacheLookupsTotal.WithLabelValues("hit").Inc()
		return b, nil
	}
	metrics.CompileCacheLookupsTotal.WithLabelValues("miss").Inc()

	c.mu.Lock()
	if call, inFlight := c.inflight[key]; inFlight {
		c.mu.Unlock()
		<-call.done
		return call.binary, call.err
	}
	call := &buildCall{done: make(chan struct{})}
	c.inflight[key] = call
	c.mu.Unlock()

	start := time.Now()
	call.binary, call.err = build()
	metrics.CompileDuration.WithLabelValues("compile_link").Observe(time.Since(start).Seconds())
	if call.err == nil {
		_ = c.Store(key, call.binary)
	}

	c.mu.Lock()
	delete(c.inflight, key)
	c.mu.Unlock()
	close(call.done)

	return call.binary, call.err
}
