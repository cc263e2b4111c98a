package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/docextract/internal/model"
)

// MemoryStore is the in-memory Store backend. It carries the full contract
// (per-id locking, create-if-absent by fingerprint) so the core logic can be
// exercised in tests without any I/O, and doubles as the default backend for
// one-shot CLI runs.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]*memTemplate
	byFP map[string][]string

	recMu   sync.Mutex
	records []model.ExtractionRecord
}

// memTemplate guards one template with its own lock so updates to distinct
// ids never contend.
type memTemplate struct {
	mu  sync.Mutex
	tpl *model.Template
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		byID: make(map[string]*memTemplate),
		byFP: make(map[string][]string),
	}
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }
func (s *MemoryStore) Close() error                  { return nil }

func (s *MemoryStore) PutTemplate(_ context.Context, tpl *model.Template) (*model.Template, error) {
	if tpl.Fingerprint == "" {
		return nil, eris.New("memory: refusing template with null fingerprint")
	}
	if len(tpl.Rules) == 0 {
		return nil, eris.New("memory: refusing template with zero rules")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ids := s.byFP[tpl.Fingerprint]; len(ids) > 0 {
		// Lost the create race (or the fingerprint was already known):
		// the stored template is authoritative.
		existing := s.collectLocked(ids)
		rankTemplates(existing)
		return existing[0].Clone(), nil
	}

	cp := tpl.Clone()
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	s.byID[cp.ID] = &memTemplate{tpl: cp}
	s.byFP[cp.Fingerprint] = append(s.byFP[cp.Fingerprint], cp.ID)
	return cp.Clone(), nil
}

func (s *MemoryStore) GetTemplate(_ context.Context, id string) (*model.Template, error) {
	s.mu.RLock()
	mt, ok := s.byID[id]
	s.mu.RUnlock()
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "id %s", id)
	}
	mt.mu.Lock()
	defer mt.mu.Unlock()
	return mt.tpl.Clone(), nil
}

func (s *MemoryStore) FindByFingerprint(_ context.Context, fp string) ([]*model.Template, error) {
	if fp == "" {
		return nil, nil
	}
	s.mu.RLock()
	tpls := s.collectLocked(s.byFP[fp])
	s.mu.RUnlock()

	rankTemplates(tpls)
	return tpls, nil
}

func (s *MemoryStore) AllTemplates(context.Context) ([]*model.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Template, 0, len(s.byID))
	for _, mt := range s.byID {
		mt.mu.Lock()
		out = append(out, mt.tpl.Clone())
		mt.mu.Unlock()
	}
	rankTemplates(out)
	return out, nil
}

func (s *MemoryStore) RecordOutcome(_ context.Context, id string, outcome model.Outcome) error {
	mt, err := s.lookup(id)
	if err != nil {
		return err
	}

	mt.mu.Lock()
	defer mt.mu.Unlock()
	switch outcome {
	case model.OutcomeSuccess:
		mt.tpl.SuccessCount++
		mt.tpl.LastUsedAt = time.Now().UTC()
	case model.OutcomeFailure:
		mt.tpl.FailureCount++
	default:
		return eris.Errorf("memory: unknown outcome %q", outcome)
	}
	return nil
}

func (s *MemoryStore) AddRules(_ context.Context, id string, rules []model.ExtractionRule) error {
	mt, err := s.lookup(id)
	if err != nil {
		return err
	}

	mt.mu.Lock()
	defer mt.mu.Unlock()
	mergeRules(mt.tpl.Rules, rules)
	return nil
}

func (s *MemoryStore) ResetCounters(_ context.Context, id string) error {
	mt, err := s.lookup(id)
	if err != nil {
		return err
	}

	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.tpl.SuccessCount = 0
	mt.tpl.FailureCount = 0
	return nil
}

func (s *MemoryStore) AppendRecord(_ context.Context, rec *model.ExtractionRecord) error {
	s.recMu.Lock()
	defer s.recMu.Unlock()
	s.records = append(s.records, *rec)
	return nil
}

func (s *MemoryStore) ListRecords(_ context.Context, limit int) ([]model.ExtractionRecord, error) {
	s.recMu.Lock()
	defer s.recMu.Unlock()

	out := make([]model.ExtractionRecord, 0, len(s.records))
	for i := len(s.records) - 1; i >= 0; i-- {
		out = append(out, s.records[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) lookup(id string) (*memTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mt, ok := s.byID[id]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "id %s", id)
	}
	return mt, nil
}

// collectLocked snapshots the templates for the given ids. Caller holds at
// least a read lock on s.mu.
func (s *MemoryStore) collectLocked(ids []string) []*model.Template {
	out := make([]*model.Template, 0, len(ids))
	for _, id := range ids {
		if mt, ok := s.byID[id]; ok {
			mt.mu.Lock()
			out = append(out, mt.tpl.Clone())
			mt.mu.Unlock()
		}
	}
	return out
}
