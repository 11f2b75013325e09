package server

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/image/bmp"

	"canonstore/internal/blobstore"
	"canonstore/internal/metrics"
	"canonstore/internal/models"
	"canonstore/internal/store"
)

// fakeObjectStore is an in-memory ObjectStore with fault injection.
type fakeObjectStore struct {
	mu       sync.Mutex
	objects  map[string][]byte
	modTimes map[string]time.Time
	puts     []string
	deletes  []string
	now      func() time.Time

	// putErr is consulted before every put; n counts put attempts from 1.
	putErr    func(key string, n int) error
	deleteErr func(key string) error
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{
		objects:  make(map[string][]byte),
		modTimes: make(map[string]time.Time),
		now:      time.Now,
	}
}

func (f *fakeObjectStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	f.mu.Lock()
	f.puts = append(f.puts, key)
	n := len(f.puts)
	putErr := f.putErr
	f.mu.Unlock()

	if putErr != nil {
		if err := putErr(key, n); err != nil {
			return err
		}
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	f.modTimes[key] = f.now()
	return nil
}

func (f *fakeObjectStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, blobstore.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeObjectStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	f.deletes = append(f.deletes, key)
	deleteErr := f.deleteErr
	f.mu.Unlock()

	if deleteErr != nil {
		if err := deleteErr(key); err != nil {
			return err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	delete(f.modTimes, key)
	return nil
}

func (f *fakeObjectStore) List(ctx context.Context, prefix string, fn func(blobstore.ObjectInfo) error) error {
	f.mu.Lock()
	infos := make([]blobstore.ObjectInfo, 0, len(f.objects))
	for key, data := range f.objects {
		if strings.HasPrefix(key, prefix) {
			infos = append(infos, blobstore.ObjectInfo{Key: key, Size: int64(len(data)), LastModified: f.modTimes[key]})
		}
	}
	f.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	for _, info := range infos {
		if err := fn(info); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeObjectStore) putCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.puts)
}

func (f *fakeObjectStore) putKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.puts...)
}

func (f *fakeObjectStore) objectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

func (f *fakeObjectStore) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok
}

func (f *fakeObjectStore) get(key string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.objects[key]
}

// seed writes an object directly, bypassing the put counter.
func (f *fakeObjectStore) seed(key string, data []byte, modTime time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	f.modTimes[key] = modTime
}

func serviceRejection(key string) error {
	return &blobstore.StoreError{Op: blobstore.OpPut, Key: key, StatusCode: 403, Service: true, Err: errors.New("AccessDenied")}
}

func transportFailure(key string) error {
	return &blobstore.StoreError{Op: blobstore.OpPut, Key: key, Err: errors.New("connection refused")}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newTestService(t *testing.T, objects blobstore.ObjectStore) (*StorageService, *store.Store) {
	t.Helper()
	st := testStore(t)
	svc := NewStorageService(st, objects, ServiceConfig{
		CommitTimeout: 10 * time.Second,
		StageLimit:    2,
	}, metrics.New(), testLogger())
	return svc, st
}

func countBlobs(t *testing.T, st *store.Store) int {
	t.Helper()
	total := 0
	for _, family := range models.Families() {
		blobs, err := st.ListBlobs(context.Background(), string(family), 1000)
		if err != nil {
			t.Fatalf("list blobs: %v", err)
		}
		total += len(blobs)
	}
	return total
}

var testPalette = color.Palette{
	color.NRGBA{R: 0xff, A: 0xff},
	color.NRGBA{G: 0xff, A: 0xff},
	color.NRGBA{B: 0xff, A: 0xff},
	color.NRGBA{R: 0x20, G: 0x40, B: 0x60, A: 0xff},
}

// testPicture returns a small paletted image; seed varies the pixels.
func testPicture(seed int) *image.Paletted {
	img := image.NewPaletted(image.Rect(0, 0, 8, 6), testPalette)
	for y := 0; y < 6; y++ {
		for x := 0; x < 8; x++ {
			img.SetColorIndex(x, y, uint8((x+y+seed)%len(testPalette)))
		}
	}
	return img
}

func pngBytes(t *testing.T, seed int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, testPicture(seed)); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func gifBytes(t *testing.T, seed int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := gif.Encode(&buf, testPicture(seed), nil); err != nil {
		t.Fatalf("encode gif: %v", err)
	}
	return buf.Bytes()
}

func bmpBytes(t *testing.T, seed int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := bmp.Encode(&buf, testPicture(seed)); err != nil {
		t.Fatalf("encode bmp: %v", err)
	}
	return buf.Bytes()
}

func pdfBytes(body string) []byte {
	return []byte("%PDF-1.7\n1 0 obj\n<< /Title (" + body + ") >>\nendobj\ntrailer\n<<>>\n%%EOF\n")
}
