package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	documentsFile = "documents.json"
	accessFile    = "access_log.json"
)

// fileStore keeps the registry in two JSON snapshots under one directory.
// Every mutation rewrites the affected snapshot atomically, so a crash leaves
// either the old or the new state, never a torn file.
type fileStore struct {
	mu        sync.RWMutex
	dir       string
	documents map[string]Document
	access    map[string]time.Time
}

// NewFileStore opens or creates a file-backed registry rooted at dir.
func NewFileStore(dir string) (Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("registry: directory is required")
	}
	dir = filepath.Clean(dir)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("registry: ensure directory: %w", err)
	}
	fs := &fileStore{
		dir:       dir,
		documents: make(map[string]Document),
		access:    make(map[string]time.Time),
	}
	if err := loadSnapshot(filepath.Join(dir, documentsFile), &fs.documents); err != nil {
		return nil, err
	}
	if err := loadSnapshot(filepath.Join(dir, accessFile), &fs.access); err != nil {
		return nil, err
	}
	return fs, nil
}

func (s *fileStore) Put(_ context.Context, doc Document) error {
	if strings.TrimSpace(doc.ID) == "" {
		return errors.New("registry: document id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[doc.ID] = doc
	if _, ok := s.access[doc.ID]; !ok && !doc.UploadedAt.IsZero() {
		s.access[doc.ID] = doc.UploadedAt
		if err := s.persistAccessLocked(); err != nil {
			return err
		}
	}
	return s.persistDocumentsLocked()
}

func (s *fileStore) Get(_ context.Context, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return &doc, nil
}

func (s *fileStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.documents, id)
	delete(s.access, id)
	if err := s.persistDocumentsLocked(); err != nil {
		return err
	}
	return s.persistAccessLocked()
}

func (s *fileStore) List(_ context.Context) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make([]Document, 0, len(s.documents))
	for _, doc := range s.documents {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].UploadedAt.Equal(docs[j].UploadedAt) {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].UploadedAt.Before(docs[j].UploadedAt)
	})
	return docs, nil
}

func (s *fileStore) Touch(_ context.Context, at time.Time, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := false
	for _, id := range ids {
		if _, ok := s.documents[id]; !ok {
			continue
		}
		if current, ok := s.access[id]; ok && !at.After(current) {
			continue
		}
		s.access[id] = at
		changed = true
	}
	if !changed {
		return nil
	}
	return s.persistAccessLocked()
}

func (s *fileStore) LastAccess(_ context.Context, id string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if at, ok := s.access[id]; ok {
		return at, nil
	}
	return doc.UploadedAt, nil
}

func (s *fileStore) AccessedBefore(_ context.Context, cutoff time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0)
	for id, doc := range s.documents {
		last, ok := s.access[id]
		if !ok {
			last = doc.UploadedAt
		}
		if last.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *fileStore) Close(context.Context) error {
	return nil
}

func (s *fileStore) persistDocumentsLocked() error {
	return persistSnapshot(filepath.Join(s.dir, documentsFile), s.documents)
}

func (s *fileStore) persistAccessLocked() error {
	return persistSnapshot(filepath.Join(s.dir, accessFile), s.access)
}

func loadSnapshot(path string, out any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("registry: read %q: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("registry: decode %q: %w", path, err)
	}
	return nil
}

func persistSnapshot(path string, payload any) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("registry: encode snapshot: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("registry: write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("registry: commit snapshot: %w", err)
	}
	return nil
}
