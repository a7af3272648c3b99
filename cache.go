package bundlestate

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/albertocavalcante/go-bundlestate/internal/binfmt"
)

// CacheVersion is the format version byte leading every state cache
// header. Caches written with another version are ignored.
const CacheVersion byte = 3

// cachePermissions is the file mode of state cache files.
const cachePermissions = 0o600

// FormatError reports a corrupt state cache.
type FormatError = binfmt.FormatError

// WithExpectedTimestamp makes ReadState and ReadStateFiles reject caches
// whose stored timestamp differs from ts. NewState fails when given it.
func WithExpectedTimestamp(ts int64) Option {
	return func(c *stateConfig) error {
		c.expectedTimestamp = ts
		c.checkTimestamp = true
		return nil
	}
}

// Write encodes s as a header stream and a lazy stream. Lazy data still in
// the cache s was read from is loaded first.
func (s *State) Write(header, lazy io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fullyLoadLocked(); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	// Everything is in memory now and the source cache may be overwritten.
	s.lazy = nil

	cw := newCacheWriter(s)
	h, l, err := cw.encode()
	if err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if _, err := lazy.Write(l); err != nil {
		return fmt.Errorf("write lazy data: %w", err)
	}
	if _, err := header.Write(h); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	s.log.Debug("state written", "header_bytes", len(h), "lazy_bytes", len(l))
	return nil
}

// WriteFiles writes s to a header and lazy file pair, replacing existing
// files atomically.
func (s *State) WriteFiles(headerPath, lazyPath string) error {
	var header, lazy bytes.Buffer
	if err := s.Write(&header, &lazy); err != nil {
		return err
	}
	if err := writeFileAtomic(lazyPath, lazy.Bytes()); err != nil {
		return err
	}
	return writeFileAtomic(headerPath, header.Bytes())
}

func writeFileAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := f.Chmod(cachePermissions); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	return nil
}

// ReadState decodes a State from a header stream. Bulk bundle data is read
// on demand from lazy. ok is false, with a nil error, when the cache was
// written by another format version or its timestamp differs from the one
// requested with WithExpectedTimestamp.
func ReadState(header io.Reader, lazy io.ReaderAt, opts ...Option) (s *State, ok bool, err error) {
	data, err := io.ReadAll(header)
	if err != nil {
		return nil, false, fmt.Errorf("read header: %w", err)
	}
	open := func() (io.ReaderAt, io.Closer, error) { return lazy, nopCloser{}, nil }
	return readState(data, open, opts...)
}

// ReadStateFiles reads a State from a header and lazy file pair. The lazy
// file is opened only while bundle data is being loaded.
func ReadStateFiles(headerPath, lazyPath string, opts ...Option) (*State, bool, error) {
	data, err := os.ReadFile(headerPath)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read state header: %w", err)
	}
	open := func() (io.ReaderAt, io.Closer, error) {
		f, err := os.Open(lazyPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open lazy data: %w", err)
		}
		return f, f, nil
	}
	return readState(data, open, opts...)
}

func readState(data []byte, open func() (io.ReaderAt, io.Closer, error), opts ...Option) (*State, bool, error) {
	cfg, err := newStateConfig(opts...)
	if err != nil {
		return nil, false, err
	}
	cr := newCacheReader(cfg, data, open)
	s, ok, err := cr.decode()
	if err != nil || !ok {
		return nil, ok, err
	}
	s.log.Debug("state read", "bundles", len(s.bundles), "pending", len(s.pending), "timestamp", s.timestamp)
	return s, true, nil
}

// FullyLoad loads every bundle's lazy data, returning the first
// *FormatError instead of panicking on access.
func (s *State) FullyLoad() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fullyLoadLocked()
}

func (s *State) fullyLoadLocked() error {
	if s.lazy == nil {
		return nil
	}
	for _, b := range s.lazy.order {
		if err := s.lazy.load(b); err != nil {
			return err
		}
	}
	return nil
}

// UnloadLazyData drops the bulk data of bundles read from a cache so that
// it is reloaded on next access. It does nothing and returns false when s
// changed since it was read, a dynamic import touched the cached data, or
// any bundle's data was accessed since the previous call.
func (s *State) UnloadLazyData() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ls := s.lazy
	if ls == nil {
		return false
	}
	accessed := false
	for _, b := range ls.order {
		if b.accessed.Swap(false) {
			accessed = true
		}
	}
	if accessed || s.dynamicCacheChanged || s.timestamp != ls.timestamp {
		return false
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	for _, b := range ls.order {
		b.data.Store(nil)
	}
	s.log.Debug("lazy data unloaded", "bundles", len(ls.order))
	return true
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

type segment struct {
	offset int64
	length int32
}

// lazyStore loads bundle data from the lazy stream of a cache.
type lazyStore struct {
	mu        sync.Mutex
	open      func() (io.ReaderAt, io.Closer, error)
	timestamp int64

	// order lists bundles in table index order.
	order    []*Bundle
	bundles  *binfmt.ObjectTable[*Bundle]
	index    map[*Bundle]int32
	segments map[*Bundle]segment
}

func (ls *lazyStore) load(b *Bundle) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if b.data.Load() != nil {
		return nil
	}

	var batch []*Bundle
	seen := make(map[*Bundle]bool)
	var walk func(*Bundle)
	walk = func(x *Bundle) {
		if seen[x] || x.data.Load() != nil {
			return
		}
		seen[x] = true
		batch = append(batch, x)
		for _, dep := range x.Dependencies() {
			walk(dep)
		}
		for _, h := range x.Hosts() {
			walk(h)
		}
	}
	walk(b)
	slices.SortFunc(batch, func(x, y *Bundle) int {
		switch ox, oy := ls.segments[x].offset, ls.segments[y].offset; {
		case ox < oy:
			return -1
		case ox > oy:
			return 1
		}
		return 0
	})

	ra, closer, err := ls.open()
	if err != nil {
		return err
	}
	defer closer.Close()

	records := make(map[*Bundle]*lazyRecord, len(batch))
	for _, x := range batch {
		seg, ok := ls.segments[x]
		if !ok {
			return &FormatError{Reason: fmt.Sprintf("no lazy segment for %s", x)}
		}
		buf := make([]byte, seg.length)
		if _, err := ra.ReadAt(buf, seg.offset); err != nil {
			return &FormatError{Offset: seg.offset, Reason: fmt.Sprintf("read lazy segment of %s", x), Err: err}
		}
		rec, err := decodeLazy(binfmt.NewReader(buf, seg.offset), x, ls.index[x])
		if err != nil {
			return err
		}
		records[x] = rec
	}
	for _, x := range batch {
		if err := records[x].link(ls, records); err != nil {
			return err
		}
	}
	for _, x := range batch {
		x.data.Store(records[x].data)
	}
	return nil
}
