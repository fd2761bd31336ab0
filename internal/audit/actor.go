package audit

import "context"

type actorKey struct{}

// WithActor は操作の実行者IDをコンテキストに設定する。
// 管理者が他のユーザーを操作する場合、監査ログの記録者は管理者になる。
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actorID)
}

// ActorFromContext はコンテキストの実行者IDを返す。未設定の場合はfallbackを返す。
func ActorFromContext(ctx context.Context, fallback string) string {
	if id, ok := ctx.Value(actorKey{}).(string); ok && id != "" {
		return id
	}
	return fallback
}
