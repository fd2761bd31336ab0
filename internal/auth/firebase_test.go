package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	fbauth "firebase.google.com/go/v4/auth"

	"github.com/hitoshi/courseman/internal/model"
)

// mockAdmin はadminClientのモック。
type mockAdmin struct {
	createUserFn  func(ctx context.Context, user *fbauth.UserToCreate) (*fbauth.UserRecord, error)
	revokeFn      func(ctx context.Context, uid string) error
	verifyTokenFn func(ctx context.Context, idToken string) (*fbauth.Token, error)
}

func (m *mockAdmin) CreateUser(ctx context.Context, user *fbauth.UserToCreate) (*fbauth.UserRecord, error) {
	return m.createUserFn(ctx, user)
}

func (m *mockAdmin) RevokeRefreshTokens(ctx context.Context, uid string) error {
	return m.revokeFn(ctx, uid)
}

func (m *mockAdmin) VerifyIDTokenAndCheckRevoked(ctx context.Context, idToken string) (*fbauth.Token, error) {
	return m.verifyTokenFn(ctx, idToken)
}

// newToolkitServer はIdentity ToolkitのverifyPasswordを模したテストサーバーを起動する。
func newToolkitServer(t *testing.T, handler http.HandlerFunc) *FirebaseProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p := &FirebaseProvider{admin: &mockAdmin{}}
	err := p.setupToolkit(context.Background(), FirebaseConfig{
		APIKey:                  "test-api-key",
		IdentityToolkitEndpoint: server.URL + "/",
	})
	if err != nil {
		t.Fatalf("setupToolkit: %v", err)
	}
	return p
}

func TestFirebaseProvider_Register_ReturnsUID(t *testing.T) {
	var called bool
	p := &FirebaseProvider{admin: &mockAdmin{
		createUserFn: func(_ context.Context, user *fbauth.UserToCreate) (*fbauth.UserRecord, error) {
			called = true
			return &fbauth.UserRecord{UserInfo: &fbauth.UserInfo{UID: "uid-123"}}, nil
		},
	}}

	uid, err := p.Register(context.Background(), "ana@example.com", "s3cret!")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !called || uid != "uid-123" {
		t.Errorf("uid = %q, called = %v", uid, called)
	}
}

func TestFirebaseProvider_Register_WrapsFailure(t *testing.T) {
	cause := errors.New("backend unavailable")
	p := &FirebaseProvider{admin: &mockAdmin{
		createUserFn: func(context.Context, *fbauth.UserToCreate) (*fbauth.UserRecord, error) {
			return nil, cause
		},
	}}

	_, err := p.Register(context.Background(), "ana@example.com", "s3cret!")
	if !errors.Is(err, model.ErrAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Error("cause should be preserved")
	}
}

func TestFirebaseProvider_SignOut(t *testing.T) {
	var revoked string
	p := &FirebaseProvider{admin: &mockAdmin{
		revokeFn: func(_ context.Context, uid string) error {
			revoked = uid
			return nil
		},
	}}

	if err := p.SignOut(context.Background(), "uid-9"); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if revoked != "uid-9" {
		t.Errorf("revoked = %q, want uid-9", revoked)
	}
}

func TestFirebaseProvider_VerifyToken(t *testing.T) {
	p := &FirebaseProvider{admin: &mockAdmin{
		verifyTokenFn: func(_ context.Context, idToken string) (*fbauth.Token, error) {
			if idToken != "good-token" {
				return nil, errors.New("signature mismatch")
			}
			return &fbauth.Token{UID: "uid-1"}, nil
		},
	}}

	uid, err := p.VerifyToken(context.Background(), "good-token")
	if err != nil || uid != "uid-1" {
		t.Errorf("VerifyToken(good) = %q, %v", uid, err)
	}

	if _, err := p.VerifyToken(context.Background(), "forged"); !errors.Is(err, model.ErrAuth) {
		t.Errorf("VerifyToken(forged): expected auth error, got %v", err)
	}
}

func TestFirebaseProvider_Authenticate_Success(t *testing.T) {
	p := newToolkitServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req["email"] != "ana@example.com" || req["password"] != "s3cret!" {
			t.Errorf("unexpected request body: %v", req)
		}
		if r.URL.Query().Get("key") != "test-api-key" {
			t.Errorf("api key not sent: %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"localId": "uid-42",
			"email":   "ana@example.com",
			"idToken": "id-token-xyz",
		})
	})

	principal, err := p.Authenticate(context.Background(), "ana@example.com", "s3cret!")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if principal.ID != "uid-42" || principal.Token != "id-token-xyz" || principal.Email != "ana@example.com" {
		t.Errorf("principal = %+v", principal)
	}
}

// TestFirebaseProvider_Authenticate_InvalidPassword は資格情報の誤りが原因なしのAuthErrorになることを検証する。
func TestFirebaseProvider_Authenticate_InvalidPassword(t *testing.T) {
	p := newToolkitServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": 400, "message": "INVALID_PASSWORD"},
		})
	})

	_, err := p.Authenticate(context.Background(), "ana@example.com", "wrong")
	var aerr *model.AuthError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected *model.AuthError, got %v", err)
	}
	if aerr.Reason != "invalid credentials" || aerr.Err != nil {
		t.Errorf("AuthError = %+v", aerr)
	}
}

func TestFirebaseProvider_Authenticate_ServerError(t *testing.T) {
	p := newToolkitServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := p.Authenticate(context.Background(), "ana@example.com", "s3cret!")
	var aerr *model.AuthError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected *model.AuthError, got %v", err)
	}
	if aerr.Err == nil {
		t.Error("transport failures should keep the cause")
	}
}

func TestFirebaseProvider_Authenticate_NotConfigured(t *testing.T) {
	p := &FirebaseProvider{admin: &mockAdmin{}}
	if _, err := p.Authenticate(context.Background(), "a@b.com", "x"); !errors.Is(err, model.ErrAuth) {
		t.Errorf("expected auth error, got %v", err)
	}
}
