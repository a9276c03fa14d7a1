package attachment

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sync"
	"time"

	"worksign/internal/review"
)

// InMemoryStore backs tests and deployments without an object store.
type InMemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{objects: make(map[string][]byte)}
}

func (s *InMemoryStore) Put(_ context.Context, jti, filename, contentType string, _ int64, body io.Reader) (review.Attachment, error) {
	data := new(bytes.Buffer)
	if _, err := data.ReadFrom(body); err != nil {
		return review.Attachment{}, fmt.Errorf("read attachment: %w", err)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	objectKey := path.Join(jti, filename)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[objectKey] = data.Bytes()
	return review.Attachment{
		Name:        filename,
		ObjectKey:   objectKey,
		ContentType: contentType,
		Size:        int64(data.Len()),
	}, nil
}

func (s *InMemoryStore) PresignGet(_ context.Context, objectKey string, _ time.Duration) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.objects[objectKey]; !ok {
		return "", fmt.Errorf("attachment %q not found", objectKey)
	}
	return "memory://" + objectKey, nil
}
