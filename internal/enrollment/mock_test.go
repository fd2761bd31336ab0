package enrollment

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/courseman/internal/auth"
	"github.com/hitoshi/courseman/internal/model"
	"github.com/hitoshi/courseman/internal/repository"
)

// hookStore はMemoryStoreに書き込み前フックと失敗注入を加えたストア。
type hookStore struct {
	*repository.MemoryStore

	// failPatch は "collection/id" に対するPatchを失敗させる。
	failPatch map[string]error
	failPut   map[string]error
	// beforePatch はPatchの直前に呼ばれる（並行書き込みの再現用）。
	beforePatch func(collection, id string)

	mu     sync.Mutex
	writes []string
}

func newHookStore() *hookStore {
	return &hookStore{
		MemoryStore: repository.NewMemoryStore(),
		failPatch:   map[string]error{},
		failPut:     map[string]error{},
	}
}

func (s *hookStore) Put(ctx context.Context, collection, id string, data map[string]any, opts ...repository.WriteOption) error {
	if err := s.failPut[collection+"/"+id]; err != nil {
		return err
	}
	if err := s.MemoryStore.Put(ctx, collection, id, data, opts...); err != nil {
		return err
	}
	s.record("put " + collection + "/" + id)
	return nil
}

func (s *hookStore) Patch(ctx context.Context, collection, id string, fields map[string]any, opts ...repository.WriteOption) error {
	if s.beforePatch != nil {
		s.beforePatch(collection, id)
	}
	if err := s.failPatch[collection+"/"+id]; err != nil {
		return err
	}
	if err := s.MemoryStore.Patch(ctx, collection, id, fields, opts...); err != nil {
		return err
	}
	s.record("patch " + collection + "/" + id)
	return nil
}

func (s *hookStore) Delete(ctx context.Context, collection, id string) error {
	if err := s.MemoryStore.Delete(ctx, collection, id); err != nil {
		return err
	}
	s.record("delete " + collection + "/" + id)
	return nil
}

func (s *hookStore) record(w string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, w)
}

// dataWrites はlogs以外への書き込みを返す。
func (s *hookStore) dataWrites() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, w := range s.writes {
		if !strings.Contains(w, " "+model.CollectionLogs+"/") {
			out = append(out, w)
		}
	}
	return out
}

// mockRecorder は記録された監査アクションを保持する。
type mockRecorder struct {
	mu      sync.Mutex
	actions []string
	actors  []string
	details []map[string]any
}

func (r *mockRecorder) Record(_ context.Context, action, actorID string, details map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, action)
	r.actors = append(r.actors, actorID)
	r.details = append(r.details, details)
}

// mockMetrics は操作結果を "operation:outcome" 形式で保持する。
type mockMetrics struct {
	mu         sync.Mutex
	operations []string
	dangling   int
}

func (m *mockMetrics) RecordOperation(op, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operations = append(m.operations, op+":"+outcome)
}

func (m *mockMetrics) RecordDanglingReference(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dangling++
}

func (m *mockMetrics) RecordAuditFailure(string) {}

func (m *mockMetrics) RecordStoreLatency(string, time.Duration) {}

func (m *mockMetrics) RecordHTTPStatus(int) {}

func (m *mockMetrics) RecordLogsPurged(int) {}

func (m *mockMetrics) last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.operations) == 0 {
		return ""
	}
	return m.operations[len(m.operations)-1]
}

// mockAuth はauth.Providerのモック。
type mockAuth struct {
	registerFn     func(ctx context.Context, email, secret string) (string, error)
	authenticateFn func(ctx context.Context, email, secret string) (*auth.Principal, error)
	signOutFn      func(ctx context.Context, principalID string) error
}

func (m *mockAuth) Register(ctx context.Context, email, secret string) (string, error) {
	return m.registerFn(ctx, email, secret)
}

func (m *mockAuth) Authenticate(ctx context.Context, email, secret string) (*auth.Principal, error) {
	return m.authenticateFn(ctx, email, secret)
}

func (m *mockAuth) SignOut(ctx context.Context, principalID string) error {
	return m.signOutFn(ctx, principalID)
}

func (m *mockAuth) VerifyToken(context.Context, string) (string, error) {
	return "", errors.New("not used")
}

// fixture はテスト用のサービスと依存をまとめたもの。
type fixture struct {
	store    *hookStore
	recorder *mockRecorder
	metrics  *mockMetrics
	svc      *Service
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store:    newHookStore(),
		recorder: &mockRecorder{},
		metrics:  &mockMetrics{},
	}
	base := []Option{WithRecorder(f.recorder), WithMetrics(f.metrics), WithTimeout(5 * time.Second)}
	f.svc = NewService(f.store, append(base, opts...)...)
	return f
}

// seedUser はユーザーをストアに直接書き込む。
func (f *fixture) seedUser(t *testing.T, u *model.User) {
	t.Helper()
	if u.Role == "" {
		u.Role = model.RoleStudent
	}
	if err := f.store.MemoryStore.Put(context.Background(), model.CollectionUsers, u.ID, model.UserToDocument(u)); err != nil {
		t.Fatalf("seed user %s: %v", u.ID, err)
	}
}

// seedCourse はコースをストアに直接書き込む。
func (f *fixture) seedCourse(t *testing.T, c *model.Course) {
	t.Helper()
	if err := f.store.MemoryStore.Put(context.Background(), model.CollectionCourses, c.ID, model.CourseToDocument(c)); err != nil {
		t.Fatalf("seed course %s: %v", c.ID, err)
	}
}

func (f *fixture) user(t *testing.T, id string) *model.User {
	t.Helper()
	doc, err := f.store.Get(context.Background(), model.CollectionUsers, id)
	if err != nil {
		t.Fatalf("get user %s: %v", id, err)
	}
	u, err := model.UserFromDocument(doc.ID, doc.Data)
	if err != nil {
		t.Fatalf("decode user %s: %v", id, err)
	}
	return u
}

func (f *fixture) course(t *testing.T, id string) *model.Course {
	t.Helper()
	doc, err := f.store.Get(context.Background(), model.CollectionCourses, id)
	if err != nil {
		t.Fatalf("get course %s: %v", id, err)
	}
	c, err := model.CourseFromDocument(doc.ID, doc.Data)
	if err != nil {
		t.Fatalf("decode course %s: %v", id, err)
	}
	return c
}

func ana() *model.User {
	return &model.User{
		ID:        "123.456.789-10",
		Name:      "Ana Souza",
		TaxID:     "123.456.789-10",
		BirthDate: "1995-04-12",
		Email:     "ana@example.com",
		Phone:     "11987-6543",
		Role:      model.RoleStudent,
	}
}
