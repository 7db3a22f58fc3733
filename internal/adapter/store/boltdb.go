package store

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"tabrag/internal/domain"
)

var (
	bucketRecords      = []byte("records")
	bucketFileChunks   = []byte("file_chunks")
	bucketFingerprints = []byte("fingerprints")
	bucketStats        = []byte("stats")
	keyStats           = []byte("corpus_stats")
)

var dataBuckets = [][]byte{bucketRecords, bucketFileChunks, bucketFingerprints}

// BoltStore persists embedding records and file fingerprints in a bbolt file.
type BoltStore struct {
	db *bbolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range append(dataBuckets, bucketStats) {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

type storedRecord struct {
	Chunk  domain.Chunk `json:"c"`
	Vector []float32    `json:"v"`
}

// ReplaceFile swaps every record of file.Path for records in one transaction.
func (s *BoltStore) ReplaceFile(file domain.SourceFile, records []domain.EmbeddingRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := deleteFileTx(tx, file.Path); err != nil {
			return err
		}

		recordsBucket := tx.Bucket(bucketRecords)
		ids := make([]string, 0, len(records))
		for _, rec := range records {
			data, err := json.Marshal(storedRecord{Chunk: rec.Chunk, Vector: rec.Vector})
			if err != nil {
				return err
			}
			if err := recordsBucket.Put([]byte(rec.Chunk.ID), data); err != nil {
				return err
			}
			ids = append(ids, rec.Chunk.ID)
		}

		idsData, err := json.Marshal(ids)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketFileChunks).Put([]byte(file.Path), idsData); err != nil {
			return err
		}

		fileData, err := json.Marshal(file)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketFingerprints).Put([]byte(file.Path), fileData)
	})
}

func (s *BoltStore) DeleteFile(path string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return deleteFileTx(tx, path)
	})
}

func deleteFileTx(tx *bbolt.Tx, path string) error {
	fileChunks := tx.Bucket(bucketFileChunks)
	if data := fileChunks.Get([]byte(path)); data != nil {
		var ids []string
		if err := json.Unmarshal(data, &ids); err != nil {
			return fmt.Errorf("corrupt chunk list for %s: %w", path, err)
		}
		recordsBucket := tx.Bucket(bucketRecords)
		for _, id := range ids {
			if err := recordsBucket.Delete([]byte(id)); err != nil {
				return err
			}
		}
		if err := fileChunks.Delete([]byte(path)); err != nil {
			return err
		}
	}
	return tx.Bucket(bucketFingerprints).Delete([]byte(path))
}

// Load reads every fingerprint and record. Corrupted records are skipped.
func (s *BoltStore) Load() ([]domain.SourceFile, []domain.EmbeddingRecord, error) {
	var files []domain.SourceFile
	var records []domain.EmbeddingRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		err := tx.Bucket(bucketFingerprints).ForEach(func(k, v []byte) error {
			var f domain.SourceFile
			if err := json.Unmarshal(v, &f); err != nil {
				return nil
			}
			files = append(files, f)
			return nil
		})
		if err != nil {
			return err
		}

		return tx.Bucket(bucketRecords).ForEach(func(k, v []byte) error {
			var stored storedRecord
			if err := json.Unmarshal(v, &stored); err != nil {
				return nil
			}
			records = append(records, domain.EmbeddingRecord{Chunk: stored.Chunk, Vector: stored.Vector})
			return nil
		})
	})
	return files, records, err
}

func (s *BoltStore) GetStats() (domain.Stats, error) {
	var stats domain.Stats
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketStats).Get(keyStats)
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &stats)
	})
	return stats, err
}

func (s *BoltStore) UpdateStats(stats domain.Stats) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(stats)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketStats).Put(keyStats, data)
	})
}

func (s *BoltStore) Sync() error {
	return s.db.Sync()
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
