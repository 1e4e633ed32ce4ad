package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"
)

// Memory хранит файлы в памяти процесса. Для разработки и тестов.
type Memory struct {
	mtx     *sync.RWMutex
	objects map[string][]byte
	types   map[string]string
	failPut error
}

func NewMemory() *Memory {
	return &Memory{
		mtx:     &sync.RWMutex{},
		objects: make(map[string][]byte),
		types:   make(map[string]string),
	}
}

// FailPut: все следующие Put вернут err, nil снимает сбой.
func (m *Memory) FailPut(err error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.failPut = err
}

func (m *Memory) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (*Object, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("чтение файла: %w", err)
	}
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if m.failPut != nil {
		return nil, m.failPut
	}
	m.objects[key] = data
	m.types[key] = contentType
	sum := sha256.Sum256(data)
	return &Object{Key: key, Size: int64(len(data)), ContentType: contentType, Hash: hex.EncodeToString(sum[:])}, nil
}

func (m *Memory) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	if _, ok := m.objects[key]; !ok {
		return "", ErrNotFound
	}
	exp := time.Now().Add(ttl).Unix()
	return fmt.Sprintf("memory://blobs/%s?expires=%d", url.PathEscape(key), exp), nil
}

func (m *Memory) Exists(ctx context.Context, key string) (bool, error) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	delete(m.objects, key)
	delete(m.types, key)
	return nil
}

func (m *Memory) Bytes(key string) ([]byte, bool) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	b, ok := m.objects[key]
	return bytes.Clone(b), ok
}

func (m *Memory) Len() int {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	return len(m.objects)
}
