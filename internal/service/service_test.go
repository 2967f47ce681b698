package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/clinsight/ctr-registry-api/internal/realtime"
	appErrors "github.com/clinsight/ctr-registry-api/pkg/errors"
)

// stubRunner executes the transaction body directly. When failWith is
// set the body still runs but the commit "fails", which lets tests
// assert that post-commit side effects never fire on rollback.
type stubRunner struct {
	failWith error
	calls    int
}

func (r *stubRunner) RunInTx(ctx context.Context, fn func(q sqlx.ExtContext) error) error {
	r.calls++
	if err := fn(nil); err != nil {
		return err
	}
	return r.failWith
}

// recordedAudit is one captured audit call.
type recordedAudit struct {
	TableName string
	RecordID  string
	Action    string
	ActorID   *string
	Payload   interface{}
}

type stubAudit struct {
	entries []recordedAudit
	err     error
}

func (a *stubAudit) Record(_ context.Context, _ sqlx.ExtContext, tableName, recordID, action string, actorID *string, payload interface{}) error {
	if a.err != nil {
		return a.err
	}
	a.entries = append(a.entries, recordedAudit{
		TableName: tableName,
		RecordID:  recordID,
		Action:    action,
		ActorID:   actorID,
		Payload:   payload,
	})
	return nil
}

type stubHub struct {
	events []realtime.Event
}

func (h *stubHub) Publish(event realtime.Event) {
	h.events = append(h.events, event)
}

type stubCache struct {
	store    map[string][]byte
	deleted  []string
	setErr   error
	patchErr error
}

func (s *stubCache) Get(_ context.Context, key string, dest interface{}) error {
	payload, ok := s.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(payload, dest)
}

func (s *stubCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	if s.setErr != nil {
		return s.setErr
	}
	if s.store == nil {
		s.store = make(map[string][]byte)
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.store[key] = payload
	return nil
}

func (s *stubCache) DeleteByPattern(_ context.Context, pattern string) error {
	if s.patchErr != nil {
		return s.patchErr
	}
	s.deleted = append(s.deleted, pattern)
	return nil
}

type stubMetrics struct {
	mutations map[string]int
	clamped   int
}

func (m *stubMetrics) MutationCommitted(entity, action string) {
	if m.mutations == nil {
		m.mutations = make(map[string]int)
	}
	m.mutations[entity+"/"+action]++
}

func (m *stubMetrics) CounterClamped() {
	m.clamped++
}

var errStoreDown = errors.New("store down")

// Fixture ids in uuid4 form so request validation passes.
const (
	uuidStudy   = "5d6e7f8a-9b0c-4d1e-8f2a-3b4c5d6e7f8a"
	uuidRelease = "2b3c4d5e-6f7a-4b8c-9d0e-1f2a3b4c5d6e"
	uuidEffort  = "4f6a8c1e-2b3d-4e5f-9a7b-8c9d0e1f2a3b"
	uuidItem    = "7c8d9e0f-1a2b-4c3d-8e5f-6a7b8c9d0e1f"
	uuidTracker = "9b8f2d74-1c3e-4a5b-8d6f-7e9a0b1c2d3e"
	uuidPackage = "1a2b3c4d-5e6f-4a7b-8c9d-0e1f2a3b4c5d"
	uuidPkgItem = "3e4f5a6b-7c8d-4e9f-8a1b-2c3d4e5f6a7b"
	uuidPkgItm2 = "8a9b0c1d-2e3f-4a5b-9c6d-7e8f9a0b1c2d"
	uuidUser    = "6c7d8e9f-0a1b-4c2d-8e3f-4a5b6c7d8e9f"
)
