// Package auth は外部IdPによる利用者の登録・認証を提供する。
package auth

import "context"

// Principal は認証済みの利用者を表す。
// IDはIdP上の識別子で、IdP経由で登録したユーザーのドキュメントIDにもなる。
type Principal struct {
	ID    string
	Email string
	Token string
}

// Provider はIdPのインターフェース。
// 失敗はすべて *model.AuthError（通信失敗時は原因をラップ）で返す。
type Provider interface {
	// Register はメールアドレスとパスワードで利用者を登録し、IdP上のIDを返す。
	Register(ctx context.Context, email, secret string) (string, error)

	// Authenticate はメールアドレスとパスワードを検証し、トークン付きのPrincipalを返す。
	Authenticate(ctx context.Context, email, secret string) (*Principal, error)

	// SignOut は利用者の発行済みトークンを失効させる。
	SignOut(ctx context.Context, principalID string) error

	// VerifyToken はトークンを検証し、IdP上のIDを返す。
	VerifyToken(ctx context.Context, token string) (string, error)
}
