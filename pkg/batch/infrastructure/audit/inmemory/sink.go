// Package inmemory provides an AuditSink that keeps records in memory.
package inmemory

import (
	"context"
	"sync"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

// AuditSink stores records in append order. It is safe for concurrent use.
type AuditSink struct {
	mu      sync.RWMutex
	records []model.AuditRecord
}

// NewAuditSink creates an empty AuditSink.
func NewAuditSink() *AuditSink {
	return &AuditSink{}
}

// Append implements port.AuditSink.
func (s *AuditSink) Append(ctx context.Context, record model.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

// Records returns a copy of every stored record.
func (s *AuditSink) Records() []model.AuditRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.AuditRecord, len(s.records))
	copy(out, s.records)
	return out
}

// FindByJobName returns the records of jobName in append order. limit <= 0 returns all of them.
func (s *AuditSink) FindByJobName(ctx context.Context, jobName string, limit int) ([]model.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.AuditRecord, 0)
	for _, r := range s.records {
		if r.JobName() != jobName {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Reset drops every stored record.
func (s *AuditSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
}

var _ port.AuditSink = (*AuditSink)(nil)
