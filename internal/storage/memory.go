package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

type memObject struct {
	data        []byte
	contentType string
}

// Memory keeps blobs in process. It serves tests and local runs.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]memObject
	baseURL string

	// Signing toggles SignedURL support.
	Signing bool
	// FailUploads makes every upload fail.
	FailUploads bool
}

func NewMemory(baseURL string) *Memory {
	return &Memory{objects: make(map[string]memObject), baseURL: baseURL, Signing: true}
}

func (m *Memory) Upload(_ context.Context, path string, data io.Reader, contentType string) error {
	m.mu.RLock()
	fail := m.FailUploads
	m.mu.RUnlock()
	if fail {
		return wrap("upload", path, fmt.Errorf("backend offline"))
	}
	buf, err := io.ReadAll(data)
	if err != nil {
		return wrap("read upload data", path, err)
	}
	m.mu.Lock()
	m.objects[path] = memObject{data: buf, contentType: contentType}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Download(_ context.Context, path string) (io.ReadCloser, error) {
	m.mu.RLock()
	obj, ok := m.objects[path]
	m.mu.RUnlock()
	if !ok {
		return nil, wrap("download", path, ErrObjectNotFound)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (m *Memory) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	delete(m.objects, path)
	m.mu.Unlock()
	return nil
}

func (m *Memory) PublicURL(path string) string {
	return m.baseURL + "/public/" + path
}

func (m *Memory) SignedURL(_ context.Context, path string, ttl time.Duration) (string, error) {
	if !m.Signing {
		return "", wrap("sign", path, ErrSigningUnsupported)
	}
	return fmt.Sprintf("%s/signed/%s?ttl=%d", m.baseURL, path, int64(ttl/time.Second)), nil
}

// Object returns a stored blob and its content type.
func (m *Memory) Object(path string) ([]byte, string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[path]
	return obj.data, obj.contentType, ok
}

// Paths lists stored object paths.
func (m *Memory) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.objects))
	for p := range m.objects {
		out = append(out, p)
	}
	return out
}

// SetFailUploads toggles upload failures.
func (m *Memory) SetFailUploads(fail bool) {
	m.mu.Lock()
	m.FailUploads = fail
	m.mu.Unlock()
}
