package storage

import (
	"bytes"
	"io"
	"os"
	"sync"
)

// MemStore keeps blobs in process. Get on a missing key returns an error
// satisfying errors.Is(err, os.ErrNotExist), like FSStore.
type MemStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemStore() *MemStore { return &MemStore{blobs: map[string][]byte{}} }

func (m *MemStore) Put(key string, r io.Reader) (string, error) {
	k, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.blobs[k] = b
	m.mu.Unlock()
	return k, nil
}

func (m *MemStore) Get(key string) (io.ReadCloser, error) {
	k, err := CleanKey(key)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	b, ok := m.blobs[k]
	m.mu.RUnlock()
	if !ok {
		return nil, &os.PathError{Op: "get", Path: k, Err: os.ErrNotExist}
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *MemStore) SignedURL(key string) (string, error) {
	k, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	return "mem://" + k, nil
}
