package archive

import (
	"bytes"
	"context"
	"errors"
	"sync"
)

// mockGCSWriter writes to an in-memory buffer and commits to its bucket on Close.
type mockGCSWriter struct {
	bucket   *mockGCSBucketHandle
	name     string
	buf      bytes.Buffer
	closed   bool
	writeErr error
}

func (m *mockGCSWriter) Write(p []byte) (int, error) {
	if m.closed {
		return 0, errors.New("write on closed writer")
	}
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	return m.buf.Write(p)
}

func (m *mockGCSWriter) Close() error {
	if m.closed {
		return errors.New("already closed")
	}
	m.closed = true
	if m.writeErr != nil {
		return nil
	}
	m.bucket.commit(m.name, m.buf.Bytes())
	return nil
}

type mockGCSObjectHandle struct {
	bucket *mockGCSBucketHandle
	name   string
}

func (m *mockGCSObjectHandle) NewWriter(ctx context.Context) GCSWriter {
	return &mockGCSWriter{bucket: m.bucket, name: m.name, writeErr: m.bucket.writeErr}
}

// mockGCSBucketHandle keeps committed objects by name.
type mockGCSBucketHandle struct {
	sync.Mutex
	objects  map[string][]byte
	writes   int
	writeErr error
}

func (m *mockGCSBucketHandle) Object(name string) GCSObjectHandle {
	return &mockGCSObjectHandle{bucket: m, name: name}
}

func (m *mockGCSBucketHandle) commit(name string, data []byte) {
	m.Lock()
	defer m.Unlock()
	if m.objects == nil {
		m.objects = make(map[string][]byte)
	}
	m.objects[name] = append([]byte(nil), data...)
	m.writes++
}

func (m *mockGCSBucketHandle) object(name string) ([]byte, bool) {
	m.Lock()
	defer m.Unlock()
	data, ok := m.objects[name]
	return data, ok
}

type mockGCSClient struct {
	bucket      *mockGCSBucketHandle
	bucketNames []string
}

func newMockGCSClient() *mockGCSClient {
	return &mockGCSClient{bucket: &mockGCSBucketHandle{}}
}

func (m *mockGCSClient) Bucket(name string) GCSBucketHandle {
	m.bucketNames = append(m.bucketNames, name)
	return m.bucket
}

type fakeScanner struct {
	items []map[string]any
	err   error
}

func (f *fakeScanner) ScanAll(ctx context.Context) ([]map[string]any, error) {
	return f.items, f.err
}
