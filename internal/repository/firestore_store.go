package repository

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hitoshi/courseman/internal/model"
)

// FirestoreStore はCloud Firestoreを使用したDocumentStore実装。
// バージョンにはドキュメントの更新時刻（UnixNano）を使い、
// 条件付き書き込みはLastUpdateTime前提条件で表現する。
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore はFirestoreStoreを生成する。
func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

// Get は指定IDのドキュメントを取得する。
func (s *FirestoreStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		return nil, mapFirestoreError("get", collection, id, err)
	}
	return snapshotToDocument(snap), nil
}

// Put はドキュメント全体を書き込む。
// IfVersion指定時はトランザクション内で現在のバージョンを確認してから置換する。
func (s *FirestoreStore) Put(ctx context.Context, collection, id string, data map[string]any, opts ...WriteOption) error {
	o := applyWriteOptions(opts)
	ref := s.client.Collection(collection).Doc(id)

	switch {
	case o.ifAbsent:
		if _, err := ref.Create(ctx, data); err != nil {
			return mapFirestoreError("put", collection, id, err)
		}
		return nil
	case o.ifVersion != "":
		err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
			snap, err := tx.Get(ref)
			if status.Code(err) == codes.NotFound {
				return &model.ConflictError{Collection: collection, ID: id}
			}
			if err != nil {
				return err
			}
			if versionOf(snap.UpdateTime) != o.ifVersion {
				return &model.ConflictError{Collection: collection, ID: id}
			}
			return tx.Set(ref, data)
		})
		if err != nil {
			var conflict *model.ConflictError
			if errors.As(err, &conflict) {
				return conflict
			}
			return mapFirestoreError("put", collection, id, err)
		}
		return nil
	}

	if _, err := ref.Set(ctx, data); err != nil {
		return mapFirestoreError("put", collection, id, err)
	}
	return nil
}

// Patch は指定フィールドだけを更新する。
// Updateは対象が存在しない場合にNotFoundで失敗する。
func (s *FirestoreStore) Patch(ctx context.Context, collection, id string, fields map[string]any, opts ...WriteOption) error {
	o := applyWriteOptions(opts)

	updates := make([]firestore.Update, 0, len(fields))
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		updates = append(updates, firestore.Update{FieldPath: firestore.FieldPath{k}, Value: fields[k]})
	}

	var preconds []firestore.Precondition
	if o.ifVersion != "" {
		t, err := parseVersion(o.ifVersion)
		if err != nil {
			return &model.ConflictError{Collection: collection, ID: id}
		}
		preconds = append(preconds, firestore.LastUpdateTime(t))
	}

	if _, err := s.client.Collection(collection).Doc(id).Update(ctx, updates, preconds...); err != nil {
		return mapFirestoreError("patch", collection, id, err)
	}
	return nil
}

// Delete はドキュメントを削除する。
func (s *FirestoreStore) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.client.Collection(collection).Doc(id).Delete(ctx, firestore.Exists); err != nil {
		return mapFirestoreError("delete", collection, id, err)
	}
	return nil
}

// Exists はドキュメントが存在するかを返す。
func (s *FirestoreStore) Exists(ctx context.Context, collection, id string) (bool, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		return false, mapFirestoreError("exists", collection, id, err)
	}
	return snap.Exists(), nil
}

// ScanAll はコレクションの全ドキュメントをID昇順で返す。
func (s *FirestoreStore) ScanAll(ctx context.Context, collection string) ([]*Document, error) {
	q := s.client.Collection(collection).OrderBy(firestore.DocumentID, firestore.Asc)
	return s.collect(ctx, collection, q)
}

// ScanPage はcursorより後のドキュメントを最大pageSize件返す。
func (s *FirestoreStore) ScanPage(ctx context.Context, collection string, pageSize int, cursor string) ([]*Document, string, error) {
	if pageSize <= 0 {
		return nil, "", fmt.Errorf("page size must be positive: %d", pageSize)
	}

	q := s.client.Collection(collection).OrderBy(firestore.DocumentID, firestore.Asc).Limit(pageSize)
	if cursor != "" {
		q = q.StartAfter(cursor)
	}

	docs, err := s.collect(ctx, collection, q)
	if err != nil {
		return nil, "", err
	}
	if len(docs) < pageSize {
		return docs, "", nil
	}
	return docs, docs[len(docs)-1].ID, nil
}

func (s *FirestoreStore) collect(ctx context.Context, collection string, q firestore.Query) ([]*Document, error) {
	iter := q.Documents(ctx)
	defer iter.Stop()

	var docs []*Document
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, mapFirestoreError("scan", collection, "", err)
		}
		docs = append(docs, snapshotToDocument(snap))
	}
	return docs, nil
}

func snapshotToDocument(snap *firestore.DocumentSnapshot) *Document {
	data := snap.Data()
	if data == nil {
		data = map[string]any{}
	}
	return &Document{ID: snap.Ref.ID, Data: data, Version: versionOf(snap.UpdateTime)}
}

func versionOf(t time.Time) string {
	return strconv.FormatInt(t.UnixNano(), 10)
}

func parseVersion(v string) (time.Time, error) {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, n).UTC(), nil
}

// mapFirestoreError はgRPCステータスをドメインエラーに変換する。
func mapFirestoreError(op, collection, id string, err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return &model.NotFoundError{Collection: collection, ID: id}
	case codes.AlreadyExists, codes.FailedPrecondition, codes.Aborted:
		return &model.ConflictError{Collection: collection, ID: id}
	}
	return &model.TransportError{Op: op, Collection: collection, ID: id, Err: err}
}

// compile-time interface check
var _ DocumentStore = (*FirestoreStore)(nil)
