// Package memstore keeps the index in process memory only.
package memstore

import (
	"sync"

	"tabrag/internal/domain"
)

type MemoryStore struct {
	mu          sync.RWMutex
	files       map[string]domain.SourceFile
	fileRecords map[string][]domain.EmbeddingRecord
	stats       domain.Stats
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		files:       make(map[string]domain.SourceFile),
		fileRecords: make(map[string][]domain.EmbeddingRecord),
	}
}

func (s *MemoryStore) ReplaceFile(file domain.SourceFile, records []domain.EmbeddingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[file.Path] = file
	s.fileRecords[file.Path] = append([]domain.EmbeddingRecord(nil), records...)
	return nil
}

func (s *MemoryStore) DeleteFile(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, path)
	delete(s.fileRecords, path)
	return nil
}

func (s *MemoryStore) Load() ([]domain.SourceFile, []domain.EmbeddingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	files := make([]domain.SourceFile, 0, len(s.files))
	var records []domain.EmbeddingRecord
	for path, f := range s.files {
		files = append(files, f)
		records = append(records, s.fileRecords[path]...)
	}
	return files, records, nil
}

func (s *MemoryStore) GetStats() (domain.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats, nil
}

func (s *MemoryStore) UpdateStats(stats domain.Stats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = stats
	return nil
}

func (s *MemoryStore) Sync() error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
