package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/courseman/internal/model"
)

// Dialect はSQLStoreが対象とするSQL方言。
type Dialect struct {
	name string
	// numbered が true の場合、プレースホルダを $1, $2 ... に書き換える。
	numbered bool
	// lockClause は読み込み行をロックする句。対応しない方言では空。
	lockClause string
}

var (
	// DialectPostgres はPostgreSQL（lib/pq）用の方言。
	DialectPostgres = Dialect{name: "postgres", numbered: true, lockClause: " FOR UPDATE"}
	// DialectSQLite はSQLite（go-sqlite3）用の方言。書き込みは単一接続で直列化される前提。
	DialectSQLite = Dialect{name: "sqlite3"}
)

// Name はdatabase/sqlのドライバ名を返す。
func (d Dialect) Name() string { return d.name }

// rebind は ? プレースホルダを方言に合わせて書き換える。
func (d Dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SQLStore はdocumentsテーブルにJSONとして保存するDocumentStore実装。
// 各行は (collection, id) を主キーとし、versionを書き込みごとに1ずつ増やす。
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// NewSQLStore はSQLStoreを生成する。
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect, now: time.Now}
}

// Get は指定IDのドキュメントを取得する。
func (s *SQLStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	var raw []byte
	var version int64
	err := s.db.QueryRowContext(ctx,
		s.dialect.rebind(`SELECT data, version FROM documents WHERE collection = ? AND id = ?`),
		collection, id,
	).Scan(&raw, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &model.NotFoundError{Collection: collection, ID: id}
	}
	if err != nil {
		return nil, &model.TransportError{Op: "get", Collection: collection, ID: id, Err: err}
	}
	return decodeRow(collection, id, raw, version)
}

// Put はドキュメント全体を書き込む。
func (s *SQLStore) Put(ctx context.Context, collection, id string, data map[string]any, opts ...WriteOption) error {
	o := applyWriteOptions(opts)

	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode document %s/%s: %w", collection, id, err)
	}
	now := s.now().UTC()

	var result sql.Result
	switch {
	case o.ifAbsent:
		result, err = s.db.ExecContext(ctx, s.dialect.rebind(
			`INSERT INTO documents (collection, id, data, version, updated_at)
			 VALUES (?, ?, ?, 1, ?)
			 ON CONFLICT (collection, id) DO NOTHING`),
			collection, id, string(raw), now,
		)
	case o.ifVersion != "":
		version, perr := strconv.ParseInt(o.ifVersion, 10, 64)
		if perr != nil {
			return &model.ConflictError{Collection: collection, ID: id}
		}
		result, err = s.db.ExecContext(ctx, s.dialect.rebind(
			`UPDATE documents SET data = ?, version = version + 1, updated_at = ?
			 WHERE collection = ? AND id = ? AND version = ?`),
			string(raw), now, collection, id, version,
		)
	default:
		_, err = s.db.ExecContext(ctx, s.dialect.rebind(
			`INSERT INTO documents (collection, id, data, version, updated_at)
			 VALUES (?, ?, ?, 1, ?)
			 ON CONFLICT (collection, id)
			 DO UPDATE SET data = excluded.data, version = documents.version + 1, updated_at = excluded.updated_at`),
			collection, id, string(raw), now,
		)
	}
	if err != nil {
		return &model.TransportError{Op: "put", Collection: collection, ID: id, Err: err}
	}
	if result == nil {
		return nil
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return &model.TransportError{Op: "put", Collection: collection, ID: id, Err: err}
	}
	if affected == 0 {
		return &model.ConflictError{Collection: collection, ID: id}
	}
	return nil
}

// Patch は指定フィールドをマージする。
// 読み込みと書き込みは同一トランザクションで行い、PostgreSQLでは行ロックを取得する。
func (s *SQLStore) Patch(ctx context.Context, collection, id string, fields map[string]any, opts ...WriteOption) error {
	o := applyWriteOptions(opts)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &model.TransportError{Op: "patch", Collection: collection, ID: id, Err: err}
	}
	defer tx.Rollback()

	var raw []byte
	var version int64
	err = tx.QueryRowContext(ctx,
		s.dialect.rebind(`SELECT data, version FROM documents WHERE collection = ? AND id = ?`+s.dialect.lockClause),
		collection, id,
	).Scan(&raw, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return &model.NotFoundError{Collection: collection, ID: id}
	}
	if err != nil {
		return &model.TransportError{Op: "patch", Collection: collection, ID: id, Err: err}
	}
	if o.ifVersion != "" && formatVersion(version) != o.ifVersion {
		return &model.ConflictError{Collection: collection, ID: id}
	}

	var merged map[string]any
	if err := json.Unmarshal(raw, &merged); err != nil {
		return &model.SchemaError{Collection: collection, ID: id, Reason: "stored payload is not a JSON object"}
	}
	if merged == nil {
		merged = make(map[string]any, len(fields))
	}
	maps.Copy(merged, fields)

	out, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("failed to encode document %s/%s: %w", collection, id, err)
	}

	result, err := tx.ExecContext(ctx, s.dialect.rebind(
		`UPDATE documents SET data = ?, version = version + 1, updated_at = ?
		 WHERE collection = ? AND id = ? AND version = ?`),
		string(out), s.now().UTC(), collection, id, version,
	)
	if err != nil {
		return &model.TransportError{Op: "patch", Collection: collection, ID: id, Err: err}
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return &model.TransportError{Op: "patch", Collection: collection, ID: id, Err: err}
	}
	if affected == 0 {
		return &model.ConflictError{Collection: collection, ID: id}
	}

	if err := tx.Commit(); err != nil {
		return &model.TransportError{Op: "patch", Collection: collection, ID: id, Err: err}
	}
	return nil
}

// Delete はドキュメントを削除する。
func (s *SQLStore) Delete(ctx context.Context, collection, id string) error {
	result, err := s.db.ExecContext(ctx,
		s.dialect.rebind(`DELETE FROM documents WHERE collection = ? AND id = ?`),
		collection, id,
	)
	if err != nil {
		return &model.TransportError{Op: "delete", Collection: collection, ID: id, Err: err}
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return &model.TransportError{Op: "delete", Collection: collection, ID: id, Err: err}
	}
	if affected == 0 {
		return &model.NotFoundError{Collection: collection, ID: id}
	}
	return nil
}

// Exists はドキュメントが存在するかを返す。
func (s *SQLStore) Exists(ctx context.Context, collection, id string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		s.dialect.rebind(`SELECT EXISTS (SELECT 1 FROM documents WHERE collection = ? AND id = ?)`),
		collection, id,
	).Scan(&exists)
	if err != nil {
		return false, &model.TransportError{Op: "exists", Collection: collection, ID: id, Err: err}
	}
	return exists, nil
}

// ScanAll はコレクションの全ドキュメントをID昇順で返す。
func (s *SQLStore) ScanAll(ctx context.Context, collection string) ([]*Document, error) {
	rows, err := s.db.QueryContext(ctx,
		s.dialect.rebind(`SELECT id, data, version FROM documents WHERE collection = ? ORDER BY id`),
		collection,
	)
	if err != nil {
		return nil, &model.TransportError{Op: "scan", Collection: collection, Err: err}
	}
	defer rows.Close()

	return scanRows(collection, rows)
}

// ScanPage はcursorより後のドキュメントを最大pageSize件返す。
func (s *SQLStore) ScanPage(ctx context.Context, collection string, pageSize int, cursor string) ([]*Document, string, error) {
	if pageSize <= 0 {
		return nil, "", fmt.Errorf("page size must be positive: %d", pageSize)
	}

	rows, err := s.db.QueryContext(ctx,
		s.dialect.rebind(`SELECT id, data, version FROM documents
		 WHERE collection = ? AND id > ?
		 ORDER BY id LIMIT ?`),
		collection, cursor, pageSize,
	)
	if err != nil {
		return nil, "", &model.TransportError{Op: "scan", Collection: collection, Err: err}
	}
	defer rows.Close()

	docs, err := scanRows(collection, rows)
	if err != nil {
		return nil, "", err
	}
	if len(docs) < pageSize {
		return docs, "", nil
	}
	return docs, docs[len(docs)-1].ID, nil
}

func scanRows(collection string, rows *sql.Rows) ([]*Document, error) {
	var docs []*Document
	for rows.Next() {
		var id string
		var raw []byte
		var version int64
		if err := rows.Scan(&id, &raw, &version); err != nil {
			return nil, &model.TransportError{Op: "scan", Collection: collection, Err: err}
		}
		doc, err := decodeRow(collection, id, raw, version)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, &model.TransportError{Op: "scan", Collection: collection, Err: err}
	}
	return docs, nil
}

func decodeRow(collection, id string, raw []byte, version int64) (*Document, error) {
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, &model.SchemaError{Collection: collection, ID: id, Reason: "stored payload is not a JSON object"}
	}
	if data == nil {
		data = map[string]any{}
	}
	return &Document{ID: id, Data: data, Version: formatVersion(version)}, nil
}

// compile-time interface check
var _ DocumentStore = (*SQLStore)(nil)
