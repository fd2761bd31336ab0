package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/courseman/internal/auth"
	"github.com/hitoshi/courseman/internal/enrollment"
	"github.com/hitoshi/courseman/internal/middleware"
	"github.com/hitoshi/courseman/internal/model"
)

// mockService はEnrollmentServiceのモック実装。未設定のメソッドはゼロ値を返す。
type mockService struct {
	registerUserFn     func(ctx context.Context, candidate *model.User, secret string) (*model.User, error)
	signInFn           func(ctx context.Context, email, secret string) (*enrollment.SignInResult, error)
	signOutFn          func(ctx context.Context, principalID string) error
	getUserFn          func(ctx context.Context, userID string) (*model.User, error)
	purchasedFn        func(ctx context.Context, userID string) (*enrollment.PurchasedCourses, error)
	addToCartFn        func(ctx context.Context, userID, courseID string) (*enrollment.CartResult, error)
	removeFromCartFn   func(ctx context.Context, userID, courseID string) (*enrollment.CartResult, error)
	checkoutFn         func(ctx context.Context, userID string) (*enrollment.CheckoutResult, error)
	syncFn             func(ctx context.Context, userID string) (*enrollment.SyncResult, error)
	listCoursesFn      func(ctx context.Context) ([]*model.Course, error)
	addCourseFn        func(ctx context.Context, candidate *model.Course) (*model.Course, error)
	listUsersFn        func(ctx context.Context, pageSize int, cursor string) (*enrollment.UserPage, error)
	registerPurchaseFn func(ctx context.Context, email, courseKey string) (*enrollment.PurchaseResult, error)
	removeUserFn       func(ctx context.Context, email string, confirmed bool) (string, error)
}

func (m *mockService) RegisterUser(ctx context.Context, candidate *model.User, secret string) (*model.User, error) {
	if m.registerUserFn != nil {
		return m.registerUserFn(ctx, candidate, secret)
	}
	return candidate, nil
}

func (m *mockService) SignIn(ctx context.Context, email, secret string) (*enrollment.SignInResult, error) {
	if m.signInFn != nil {
		return m.signInFn(ctx, email, secret)
	}
	return &enrollment.SignInResult{Principal: &auth.Principal{}}, nil
}

func (m *mockService) SignOut(ctx context.Context, principalID string) error {
	if m.signOutFn != nil {
		return m.signOutFn(ctx, principalID)
	}
	return nil
}

func (m *mockService) GetUser(ctx context.Context, userID string) (*model.User, error) {
	if m.getUserFn != nil {
		return m.getUserFn(ctx, userID)
	}
	return &model.User{ID: userID}, nil
}

func (m *mockService) GetPurchasedCourses(ctx context.Context, userID string) (*enrollment.PurchasedCourses, error) {
	if m.purchasedFn != nil {
		return m.purchasedFn(ctx, userID)
	}
	return &enrollment.PurchasedCourses{}, nil
}

func (m *mockService) AddToCart(ctx context.Context, userID, courseID string) (*enrollment.CartResult, error) {
	if m.addToCartFn != nil {
		return m.addToCartFn(ctx, userID, courseID)
	}
	return &enrollment.CartResult{}, nil
}

func (m *mockService) RemoveFromCart(ctx context.Context, userID, courseID string) (*enrollment.CartResult, error) {
	if m.removeFromCartFn != nil {
		return m.removeFromCartFn(ctx, userID, courseID)
	}
	return &enrollment.CartResult{}, nil
}

func (m *mockService) Checkout(ctx context.Context, userID string) (*enrollment.CheckoutResult, error) {
	if m.checkoutFn != nil {
		return m.checkoutFn(ctx, userID)
	}
	return &enrollment.CheckoutResult{NothingToPurchase: true}, nil
}

func (m *mockService) SyncEnrollments(ctx context.Context, userID string) (*enrollment.SyncResult, error) {
	if m.syncFn != nil {
		return m.syncFn(ctx, userID)
	}
	return &enrollment.SyncResult{}, nil
}

func (m *mockService) ListCourses(ctx context.Context) ([]*model.Course, error) {
	if m.listCoursesFn != nil {
		return m.listCoursesFn(ctx)
	}
	return nil, nil
}

func (m *mockService) AddCourse(ctx context.Context, candidate *model.Course) (*model.Course, error) {
	if m.addCourseFn != nil {
		return m.addCourseFn(ctx, candidate)
	}
	return candidate, nil
}

func (m *mockService) ListUsers(ctx context.Context, pageSize int, cursor string) (*enrollment.UserPage, error) {
	if m.listUsersFn != nil {
		return m.listUsersFn(ctx, pageSize, cursor)
	}
	return &enrollment.UserPage{}, nil
}

func (m *mockService) RegisterPurchase(ctx context.Context, email, courseKey string) (*enrollment.PurchaseResult, error) {
	if m.registerPurchaseFn != nil {
		return m.registerPurchaseFn(ctx, email, courseKey)
	}
	return &enrollment.PurchaseResult{}, nil
}

func (m *mockService) RemoveUser(ctx context.Context, email string, confirmed bool) (string, error) {
	if m.removeUserFn != nil {
		return m.removeUserFn(ctx, email, confirmed)
	}
	return "", nil
}

// compile-time interface check
var _ EnrollmentService = (*mockService)(nil)
var _ EnrollmentService = (*enrollment.Service)(nil)

// withUserID はリクエストコンテキストに認証済みユーザーIDを注入する。
func withUserID(req *http.Request, userID string) *http.Request {
	return req.WithContext(middleware.ContextWithUserID(req.Context(), userID))
}

// jsonRequest はJSONボディ付きのリクエストを生成する。
func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// decodeBody はレスポンスボディをデコードする。
func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v\nraw: %s", err, w.Body.String())
	}
	return v
}
