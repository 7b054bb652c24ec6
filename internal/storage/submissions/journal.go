// Package submissions journals bundles handed to the execution client.
package submissions

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
	"github.com/vadiminshakov/perpsplit/internal/domain"
	"go.uber.org/zap"
)

const (
	defaultJournalDir   = "./wal/submissions"
	submissionKeyPrefix = "submission_"
)

// Journal records every submission as pending before handoff, then as submitted or failed.
// The latest record per id wins on restore.
type Journal struct {
	mu    sync.RWMutex
	wal   *gowal.Wal
	index map[string]*domain.Submission
	clock func() time.Time
}

// Open opens (or creates) the journal under dir and restores previously written submissions.
func Open(dir string, logger *zap.Logger) (*Journal, error) {
	if dir == "" {
		dir = defaultJournalDir
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "submission_",
		SegmentThreshold: 1000,
		MaxSegments:      100,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init submission WAL")
	}

	j := &Journal{
		wal:   wal,
		index: make(map[string]*domain.Submission),
		clock: func() time.Time { return time.Now().UTC() },
	}

	for msg := range wal.Iterator() {
		if !strings.HasPrefix(msg.Key, submissionKeyPrefix) {
			continue
		}
		var rec domain.Submission
		if err := json.Unmarshal(msg.Value, &rec); err != nil {
			logger.Error("failed to unmarshal submission", zap.String("key", msg.Key), zap.Error(err))
			continue
		}
		j.index[rec.ID] = &rec
	}

	return j, nil
}

// Prepare journals a pending submission and returns it.
func (j *Journal) Prepare(intent domain.OrderIntent, alloc domain.SplitAllocation, calls []domain.TransactionCall) (domain.Submission, error) {
	rec := &domain.Submission{
		ID:         uuid.New().String(),
		Status:     domain.SubmissionPending,
		Intent:     intent,
		Allocation: alloc,
		Calls:      domain.Summarize(calls),
		Time:       j.clock(),
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.persist(rec); err != nil {
		return domain.Submission{}, err
	}
	j.index[rec.ID] = rec
	return *rec, nil
}

// MarkSubmitted records the operation hash returned by the execution client.
func (j *Journal) MarkSubmitted(id, opHash string) (domain.Submission, error) {
	return j.update(id, func(rec *domain.Submission) {
		rec.Status = domain.SubmissionSubmitted
		rec.OpHash = opHash
		rec.Error = ""
	})
}

// MarkFailed records the execution error verbatim.
func (j *Journal) MarkFailed(id string, cause error) (domain.Submission, error) {
	return j.update(id, func(rec *domain.Submission) {
		rec.Status = domain.SubmissionFailed
		if cause != nil {
			rec.Error = cause.Error()
		}
	})
}

// Get returns a submission by id.
func (j *Journal) Get(id string) (domain.Submission, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	rec, ok := j.index[id]
	if !ok {
		return domain.Submission{}, false
	}
	return *rec, true
}

// List returns all submissions, newest first.
func (j *Journal) List() []domain.Submission {
	j.mu.RLock()
	out := make([]domain.Submission, 0, len(j.index))
	for _, rec := range j.index {
		out = append(out, *rec)
	}
	j.mu.RUnlock()

	sort.Slice(out, func(a, b int) bool {
		if out[a].Time.Equal(out[b].Time) {
			return out[a].ID < out[b].ID
		}
		return out[a].Time.After(out[b].Time)
	})
	return out
}

// Close closes the underlying WAL.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.wal.Close()
}

func (j *Journal) update(id string, apply func(*domain.Submission)) (domain.Submission, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rec, ok := j.index[id]
	if !ok {
		return domain.Submission{}, errors.Errorf("submission %s not found", id)
	}

	next := *rec
	apply(&next)
	if err := j.persist(&next); err != nil {
		return domain.Submission{}, err
	}
	*rec = next
	return next, nil
}

func (j *Journal) persist(rec *domain.Submission) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "marshal submission")
	}
	return j.wal.Write(j.wal.CurrentIndex()+1, submissionKeyPrefix+rec.ID, data)
}
