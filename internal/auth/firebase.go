package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/identitytoolkit/v3"
	"google.golang.org/api/option"

	"github.com/hitoshi/courseman/internal/model"
)

// FirebaseConfig はFirebase Authプロバイダーの設定。
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
	// APIKey はパスワード認証（Identity Toolkit）に使用するWeb APIキー。
	APIKey string

	// テスト用にオーバーライド可能なIdentity Toolkitのエンドポイント
	IdentityToolkitEndpoint string
}

// adminClient はFirebase Admin SDKのうち使用する操作。
type adminClient interface {
	CreateUser(ctx context.Context, user *fbauth.UserToCreate) (*fbauth.UserRecord, error)
	RevokeRefreshTokens(ctx context.Context, uid string) error
	VerifyIDTokenAndCheckRevoked(ctx context.Context, idToken string) (*fbauth.Token, error)
}

// FirebaseProvider はFirebase AuthenticationによるProvider実装。
// 登録・失効・トークン検証はAdmin SDK、パスワード認証はIdentity Toolkit APIを使う。
type FirebaseProvider struct {
	admin   adminClient
	toolkit *identitytoolkit.Service
}

// NewFirebaseProvider はFirebaseアプリを初期化してFirebaseProviderを生成する。
// CredentialsFileが空の場合はADC（Application Default Credentials）を使用する。
func NewFirebaseProvider(ctx context.Context, cfg FirebaseConfig) (*FirebaseProvider, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get firebase auth client: %w", err)
	}

	p := &FirebaseProvider{admin: client}
	if err := p.setupToolkit(ctx, cfg); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *FirebaseProvider) setupToolkit(ctx context.Context, cfg FirebaseConfig) error {
	if cfg.APIKey == "" {
		slog.Warn("FIREBASE_API_KEY is not set; password sign-in is disabled")
		return nil
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.IdentityToolkitEndpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.IdentityToolkitEndpoint))
	}
	svc, err := identitytoolkit.NewService(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create identity toolkit client: %w", err)
	}
	p.toolkit = svc
	return nil
}

// Register は利用者をFirebaseに登録し、UIDを返す。
func (p *FirebaseProvider) Register(ctx context.Context, email, secret string) (string, error) {
	params := (&fbauth.UserToCreate{}).Email(email).Password(secret)
	rec, err := p.admin.CreateUser(ctx, params)
	if err != nil {
		if fbauth.IsEmailAlreadyExists(err) {
			return "", &model.AuthError{Reason: "email already registered"}
		}
		return "", &model.AuthError{Reason: "register failed", Err: err}
	}
	return rec.UID, nil
}

// Authenticate はIdentity Toolkitでパスワードを検証する。
func (p *FirebaseProvider) Authenticate(ctx context.Context, email, secret string) (*Principal, error) {
	if p.toolkit == nil {
		return nil, &model.AuthError{Reason: "password sign-in is not configured"}
	}

	resp, err := p.toolkit.Relyingparty.VerifyPassword(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyPasswordRequest{
		Email:             email,
		Password:          secret,
		ReturnSecureToken: true,
	}).Context(ctx).Do()
	if err != nil {
		return nil, mapToolkitError(err)
	}

	return &Principal{ID: resp.LocalId, Email: resp.Email, Token: resp.IdToken}, nil
}

// SignOut はリフレッシュトークンを失効させる。発行済みIDトークンも以後の検証で拒否される。
func (p *FirebaseProvider) SignOut(ctx context.Context, principalID string) error {
	if err := p.admin.RevokeRefreshTokens(ctx, principalID); err != nil {
		if fbauth.IsUserNotFound(err) {
			return &model.AuthError{Reason: "unknown principal"}
		}
		return &model.AuthError{Reason: "sign out failed", Err: err}
	}
	return nil
}

// VerifyToken はIDトークンを検証し、失効済みでないことも確認する。
func (p *FirebaseProvider) VerifyToken(ctx context.Context, token string) (string, error) {
	tok, err := p.admin.VerifyIDTokenAndCheckRevoked(ctx, token)
	if err != nil {
		if fbauth.IsIDTokenRevoked(err) {
			return "", &model.AuthError{Reason: "token revoked"}
		}
		return "", &model.AuthError{Reason: "invalid token", Err: err}
	}
	return tok.UID, nil
}

// mapToolkitError はIdentity Toolkitのエラーを *model.AuthError に変換する。
// 資格情報の誤りは原因を持たず、通信失敗は原因をラップする。
func mapToolkitError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == 400 {
		msg := gerr.Message
		switch {
		case strings.Contains(msg, "EMAIL_NOT_FOUND"),
			strings.Contains(msg, "INVALID_PASSWORD"),
			strings.Contains(msg, "INVALID_LOGIN_CREDENTIALS"):
			return &model.AuthError{Reason: "invalid credentials"}
		case strings.Contains(msg, "USER_DISABLED"):
			return &model.AuthError{Reason: "user disabled"}
		}
		return &model.AuthError{Reason: "rejected: " + msg}
	}
	return &model.AuthError{Reason: "identity provider unavailable", Err: err}
}

// compile-time interface check
var _ Provider = (*FirebaseProvider)(nil)
