package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/hitoshi/courseman/internal/model"
)

// MemoryStore はプロセス内メモリに保持するDocumentStore実装。
// テストとローカル実行で使用する。
// 保存時にJSONへ往復させるため、読み出した値は他のストアと同じ型
// （配列は []any、数値は float64）に正規化される。
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]map[string]*memoryEntry
	seq         int64
}

type memoryEntry struct {
	data    []byte
	version int64
}

// NewMemoryStore は空のMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string]*memoryEntry)}
}

// Get は指定IDのドキュメントを取得する。
func (s *MemoryStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, &model.TransportError{Op: "get", Collection: collection, ID: id, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.collections[collection][id]
	if !ok {
		return nil, &model.NotFoundError{Collection: collection, ID: id}
	}
	return e.document(id)
}

// Put はドキュメント全体を書き込む。
func (s *MemoryStore) Put(ctx context.Context, collection, id string, data map[string]any, opts ...WriteOption) error {
	if err := ctx.Err(); err != nil {
		return &model.TransportError{Op: "put", Collection: collection, ID: id, Err: err}
	}
	o := applyWriteOptions(opts)

	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode document %s/%s: %w", collection, id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.collections[collection][id]
	if o.ifAbsent && exists {
		return &model.ConflictError{Collection: collection, ID: id}
	}
	if o.ifVersion != "" && (!exists || formatVersion(current.version) != o.ifVersion) {
		return &model.ConflictError{Collection: collection, ID: id}
	}

	s.store(collection, id, raw)
	return nil
}

// Patch は指定フィールドをマージする。
func (s *MemoryStore) Patch(ctx context.Context, collection, id string, fields map[string]any, opts ...WriteOption) error {
	if err := ctx.Err(); err != nil {
		return &model.TransportError{Op: "patch", Collection: collection, ID: id, Err: err}
	}
	o := applyWriteOptions(opts)

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.collections[collection][id]
	if !ok {
		return &model.NotFoundError{Collection: collection, ID: id}
	}
	if o.ifVersion != "" && formatVersion(current.version) != o.ifVersion {
		return &model.ConflictError{Collection: collection, ID: id}
	}

	var merged map[string]any
	if err := json.Unmarshal(current.data, &merged); err != nil {
		return fmt.Errorf("failed to decode document %s/%s: %w", collection, id, err)
	}
	if merged == nil {
		merged = make(map[string]any, len(fields))
	}
	maps.Copy(merged, fields)

	raw, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("failed to encode document %s/%s: %w", collection, id, err)
	}
	s.store(collection, id, raw)
	return nil
}

// Delete はドキュメントを削除する。
func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return &model.TransportError{Op: "delete", Collection: collection, ID: id, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[collection][id]; !ok {
		return &model.NotFoundError{Collection: collection, ID: id}
	}
	delete(s.collections[collection], id)
	return nil
}

// Exists はドキュメントが存在するかを返す。
func (s *MemoryStore) Exists(ctx context.Context, collection, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, &model.TransportError{Op: "exists", Collection: collection, ID: id, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.collections[collection][id]
	return ok, nil
}

// ScanAll はコレクションの全ドキュメントをID昇順で返す。
func (s *MemoryStore) ScanAll(ctx context.Context, collection string) ([]*Document, error) {
	docs, _, err := s.scan(ctx, collection, 0, "")
	return docs, err
}

// ScanPage はcursorより後のドキュメントを最大pageSize件返す。
func (s *MemoryStore) ScanPage(ctx context.Context, collection string, pageSize int, cursor string) ([]*Document, string, error) {
	if pageSize <= 0 {
		return nil, "", fmt.Errorf("page size must be positive: %d", pageSize)
	}
	return s.scan(ctx, collection, pageSize, cursor)
}

func (s *MemoryStore) scan(ctx context.Context, collection string, limit int, cursor string) ([]*Document, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", &model.TransportError{Op: "scan", Collection: collection, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.collections[collection]
	ids := slices.Sorted(maps.Keys(entries))

	var docs []*Document
	for _, id := range ids {
		if cursor != "" && id <= cursor {
			continue
		}
		doc, err := entries[id].document(id)
		if err != nil {
			return nil, "", err
		}
		docs = append(docs, doc)
		if limit > 0 && len(docs) == limit {
			return docs, id, nil
		}
	}
	return docs, "", nil
}

// store は呼び出し側でロックを保持していること。
func (s *MemoryStore) store(collection, id string, raw []byte) {
	coll, ok := s.collections[collection]
	if !ok {
		coll = make(map[string]*memoryEntry)
		s.collections[collection] = coll
	}
	s.seq++
	coll[id] = &memoryEntry{data: raw, version: s.seq}
}

func (e *memoryEntry) document(id string) (*Document, error) {
	var data map[string]any
	if err := json.Unmarshal(e.data, &data); err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", id, err)
	}
	if data == nil {
		data = map[string]any{}
	}
	return &Document{ID: id, Data: data, Version: formatVersion(e.version)}, nil
}

// compile-time interface check
var _ DocumentStore = (*MemoryStore)(nil)
