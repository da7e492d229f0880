package services

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"sync"
)

// MockObjectStore is an in-memory ObjectStore for testing
type MockObjectStore struct {
	objects map[string][]byte
	putErr  error
	mu      sync.RWMutex
}

// NewMockObjectStore creates a new mock store
func NewMockObjectStore() *MockObjectStore {
	return &MockObjectStore{
		objects: make(map[string][]byte),
	}
}

// SetAsMockForTesting sets this mock as the global object store
func (m *MockObjectStore) SetAsMockForTesting() {
	SetObjectStore(m)
}

// FailPutWith makes Put return err
func (m *MockObjectStore) FailPutWith(err error) {
	m.mu.Lock()
	m.putErr = err
	m.mu.Unlock()
}

// Put stores the file content under key
func (m *MockObjectStore) Put(ctx context.Context, key string, fileHeader *multipart.FileHeader) error {
	m.mu.RLock()
	putErr := m.putErr
	m.mu.RUnlock()
	if putErr != nil {
		return putErr
	}

	file, err := fileHeader.Open()
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	m.mu.Lock()
	m.objects[key] = content
	m.mu.Unlock()
	return nil
}

// URL returns a fake presigned URL for a stored key
func (m *MockObjectStore) URL(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", nil
	}
	if !m.Exists(key) {
		return "", fmt.Errorf("object not found in mock store: %s", key)
	}
	return fmt.Sprintf("https://test-bucket.s3.ap-south-1.amazonaws.com/products/%s?mock=true", key), nil
}

// Delete removes key
func (m *MockObjectStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

// Exists reports whether key is stored
func (m *MockObjectStore) Exists(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[key]
	return ok
}

// Objects returns a copy of the stored objects
func (m *MockObjectStore) Objects() map[string][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]byte, len(m.objects))
	for k, v := range m.objects {
		out[k] = v
	}
	return out
}
