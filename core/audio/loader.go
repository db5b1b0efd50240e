package audio

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
)

// Loader resolves a catalog object path to a decoded buffer.
type Loader interface {
	Load(ctx context.Context, objectPath string) (*Buffer, error)
}

// DirLoader decodes assets from a local directory mirroring the asset bucket.
type DirLoader struct {
	Root       string
	Decoder    Decoder
	SampleRate int
}

// Load decodes the object at Root/objectPath.
func (l DirLoader) Load(ctx context.Context, objectPath string) (*Buffer, error) {
	path := filepath.Join(l.Root, filepath.FromSlash(objectPath))
	buf, err := l.Decoder.DecodeFile(ctx, path, l.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("failed to load asset %s: %w", objectPath, err)
	}
	return buf, nil
}

type loadCall struct {
	done chan struct{}
	buf  *Buffer
	err  error
}

// Cache memoizes decoded buffers by object path so repeated chunks and
// repeated exports reuse the same decode. Concurrent loads of the same path
// collapse into one underlying call.
type Cache struct {
	loader Loader

	mu       sync.Mutex
	buffers  map[string]*Buffer
	inflight map[string]*loadCall
}

// NewCache wraps a loader with memoization.
func NewCache(loader Loader) *Cache {
	return &Cache{
		loader:   loader,
		buffers:  make(map[string]*Buffer),
		inflight: make(map[string]*loadCall),
	}
}

// Load returns the cached buffer for objectPath, decoding it at most once.
// Failed loads are not cached, so a transient fetch error can be retried.
func (c *Cache) Load(ctx context.Context, objectPath string) (*Buffer, error) {
	c.mu.Lock()
	if buf, ok := c.buffers[objectPath]; ok {
		c.mu.Unlock()
		return buf, nil
	}
	if call, ok := c.inflight[objectPath]; ok {
		c.mu.Unlock()
		select {
		case <-call.done:
			return call.buf, call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	call := &loadCall{done: make(chan struct{})}
	c.inflight[objectPath] = call
	c.mu.Unlock()

	call.buf, call.err = c.loader.Load(ctx, objectPath)

	c.mu.Lock()
	delete(c.inflight, objectPath)
	if call.err == nil {
		c.buffers[objectPath] = call.buf
	}
	c.mu.Unlock()
	close(call.done)

	return call.buf, call.err
}

// Peek returns the cached buffer without triggering a load.
func (c *Cache) Peek(objectPath string) (*Buffer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	buf, ok := c.buffers[objectPath]
	return buf, ok
}
