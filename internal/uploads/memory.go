package uploads

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStorage keeps objects in process memory.
type MemoryStorage struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	now     func() time.Time
}

type memoryObject struct {
	Object
	data []byte
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{objects: make(map[string]memoryObject), now: time.Now}
}

func (m *MemoryStorage) Put(_ context.Context, key string, body io.Reader, size int64, contentType string, meta map[string]string) error {
	var buf bytes.Buffer
	if _, err := io.CopyN(&buf, body, size); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memoryObject{
		Object: Object{
			Key:          key,
			Size:         int64(buf.Len()),
			ContentType:  contentType,
			UploadedBy:   meta["uploaded-by"],
			LastModified: m.now().UTC(),
		},
		data: buf.Bytes(),
	}
	return nil
}

func (m *MemoryStorage) List(_ context.Context, prefix string) ([]Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Object, 0)
	for k, o := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, o.Object)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
