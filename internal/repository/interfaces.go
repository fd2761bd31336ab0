// Package repository はドキュメントストアの抽象と、その実装（メモリ、SQL、Firestore）を提供する。
package repository

import (
	"context"
	"strconv"
)

// Document はストアから読み出した1件のドキュメント。
// Versionは楽観的排他制御に使う不透明な文字列で、書き込みのたびに変わる。
type Document struct {
	ID      string
	Data    map[string]any
	Version string
}

// DocumentStore はコレクション単位でドキュメントを読み書きするインターフェース。
// 複数ドキュメントにまたがるトランザクションは提供しない。
//
// エラーは *model.NotFoundError、*model.ConflictError、*model.TransportError のいずれかで返す。
type DocumentStore interface {
	// Get は指定IDのドキュメントを取得する。存在しない場合は *model.NotFoundError を返す。
	Get(ctx context.Context, collection, id string) (*Document, error)

	// Put はドキュメント全体を書き込む（作成または置換）。
	Put(ctx context.Context, collection, id string, data map[string]any, opts ...WriteOption) error

	// Patch は指定フィールドだけを更新する。ドキュメントが存在しない場合は *model.NotFoundError を返す。
	Patch(ctx context.Context, collection, id string, fields map[string]any, opts ...WriteOption) error

	// Delete はドキュメントを削除する。存在しない場合は *model.NotFoundError を返す。
	Delete(ctx context.Context, collection, id string) error

	// Exists はドキュメントが存在するかを返す。
	Exists(ctx context.Context, collection, id string) (bool, error)

	// ScanAll はコレクションの全ドキュメントをID昇順で返す。
	ScanAll(ctx context.Context, collection string) ([]*Document, error)

	// ScanPage はcursorより後のドキュメントをID昇順で最大pageSize件返す。
	// 続きがある可能性がある場合は次のカーソル（最後のID）を、末尾に達した場合は空文字を返す。
	ScanPage(ctx context.Context, collection string, pageSize int, cursor string) ([]*Document, string, error)
}

// WriteOption は書き込み時の前提条件を指定する。
type WriteOption func(*writeOptions)

type writeOptions struct {
	ifVersion string
	ifAbsent  bool
}

// IfVersion は現在のバージョンが version と一致する場合のみ書き込む。
// 一致しない場合は *model.ConflictError を返す。
func IfVersion(version string) WriteOption {
	return func(o *writeOptions) { o.ifVersion = version }
}

// IfAbsent はドキュメントが存在しない場合のみ作成する（Put専用）。
// 既に存在する場合は *model.ConflictError を返す。
func IfAbsent() WriteOption {
	return func(o *writeOptions) { o.ifAbsent = true }
}

func applyWriteOptions(opts []WriteOption) writeOptions {
	var o writeOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func formatVersion(v int64) string { return strconv.FormatInt(v, 10) }
