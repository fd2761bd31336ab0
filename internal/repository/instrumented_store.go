package repository

import (
	"context"
	"time"
)

// LatencyRecorder はストア呼び出しの所要時間の記録先。
type LatencyRecorder interface {
	RecordStoreLatency(operation string, duration time.Duration)
}

// InstrumentedStore はDocumentStoreの各呼び出しの所要時間を記録するデコレーター。
type InstrumentedStore struct {
	next     DocumentStore
	recorder LatencyRecorder
	now      func() time.Time
}

// NewInstrumentedStore はnextをラップしたInstrumentedStoreを生成する。
func NewInstrumentedStore(next DocumentStore, recorder LatencyRecorder) *InstrumentedStore {
	return &InstrumentedStore{next: next, recorder: recorder, now: time.Now}
}

func (s *InstrumentedStore) observe(op string, start time.Time) {
	s.recorder.RecordStoreLatency(op, s.now().Sub(start))
}

func (s *InstrumentedStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	defer s.observe("get", s.now())
	return s.next.Get(ctx, collection, id)
}

func (s *InstrumentedStore) Put(ctx context.Context, collection, id string, data map[string]any, opts ...WriteOption) error {
	defer s.observe("put", s.now())
	return s.next.Put(ctx, collection, id, data, opts...)
}

func (s *InstrumentedStore) Patch(ctx context.Context, collection, id string, fields map[string]any, opts ...WriteOption) error {
	defer s.observe("patch", s.now())
	return s.next.Patch(ctx, collection, id, fields, opts...)
}

func (s *InstrumentedStore) Delete(ctx context.Context, collection, id string) error {
	defer s.observe("delete", s.now())
	return s.next.Delete(ctx, collection, id)
}

func (s *InstrumentedStore) Exists(ctx context.Context, collection, id string) (bool, error) {
	defer s.observe("exists", s.now())
	return s.next.Exists(ctx, collection, id)
}

func (s *InstrumentedStore) ScanAll(ctx context.Context, collection string) ([]*Document, error) {
	defer s.observe("scan_all", s.now())
	return s.next.ScanAll(ctx, collection)
}

func (s *InstrumentedStore) ScanPage(ctx context.Context, collection string, pageSize int, cursor string) ([]*Document, string, error) {
	defer s.observe("scan_page", s.now())
	return s.next.ScanPage(ctx, collection, pageSize, cursor)
}

// compile-time interface check
var _ DocumentStore = (*InstrumentedStore)(nil)
