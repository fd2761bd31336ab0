package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/courseman/internal/enrollment"
	"github.com/hitoshi/courseman/internal/model"
)

// AccountServiceInterface はログインユーザー向けハンドラーが必要とするサービスインターフェース。
type AccountServiceInterface interface {
	GetUser(ctx context.Context, userID string) (*model.User, error)
	GetPurchasedCourses(ctx context.Context, userID string) (*enrollment.PurchasedCourses, error)
	AddToCart(ctx context.Context, userID, courseID string) (*enrollment.CartResult, error)
	RemoveFromCart(ctx context.Context, userID, courseID string) (*enrollment.CartResult, error)
	Checkout(ctx context.Context, userID string) (*enrollment.CheckoutResult, error)
	SyncEnrollments(ctx context.Context, userID string) (*enrollment.SyncResult, error)
}

// AccountHandler はカートと購入済みコースのHTTPハンドラー。
type AccountHandler struct {
	service AccountServiceInterface
}

// NewAccountHandler はAccountHandlerを生成する。
func NewAccountHandler(service AccountServiceInterface) *AccountHandler {
	return &AccountHandler{service: service}
}

// meResponse はログインユーザー情報のAPIレスポンス。
type meResponse struct {
	User             *userResponse    `json:"user"`
	PurchasedCourses []courseResponse `json:"purchased_courses"`
	// DanglingCourseIDs は購入済みだがカタログに存在しないコースID。
	DanglingCourseIDs []string `json:"dangling_course_ids"`
}

// cartResponse はカート操作のAPIレスポンス。
type cartResponse struct {
	Cart    []string `json:"cart"`
	Changed bool     `json:"changed"`
}

// checkoutResponse はチェックアウトのAPIレスポンス。
type checkoutResponse struct {
	NothingToPurchase bool     `json:"nothing_to_purchase"`
	Purchased         []string `json:"purchased"`
	Added             []string `json:"added"`
	Dangling          []string `json:"dangling"`
	Enrolled          []string `json:"enrolled"`
}

// syncResponse は受講登録同期のAPIレスポンス。
type syncResponse struct {
	Enrolled []string `json:"enrolled"`
	Dangling []string `json:"dangling"`
}

// Me はログインユーザーと購入済みコースを返す。
// GET /api/users/me
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	user, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	purchased, err := h.service.GetPurchasedCourses(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, meResponse{
		User:              toUserResponse(user),
		PurchasedCourses:  toCourseResponses(purchased.Courses, false),
		DanglingCourseIDs: orEmpty(purchased.Dangling),
	})
}

// AddToCart はコースをカートに追加する。
// PUT /api/users/me/cart/{courseID}
func (h *AccountHandler) AddToCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	res, err := h.service.AddToCart(r.Context(), userID, chi.URLParam(r, "courseID"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, cartResponse{Cart: orEmpty(res.Cart), Changed: res.Changed})
}

// RemoveFromCart はコースをカートから外す。
// DELETE /api/users/me/cart/{courseID}
func (h *AccountHandler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	res, err := h.service.RemoveFromCart(r.Context(), userID, chi.URLParam(r, "courseID"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, cartResponse{Cart: orEmpty(res.Cart), Changed: res.Changed})
}

// Checkout はカートのコースを購入し、受講者として登録する。
// 受講登録の一部が失敗した場合は500（PARTIAL_FAILURE）を返す。
// POST /api/users/me/checkout
func (h *AccountHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	res, err := h.service.Checkout(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, checkoutResponse{
		NothingToPurchase: res.NothingToPurchase,
		Purchased:         orEmpty(res.Purchased),
		Added:             orEmpty(res.Added),
		Dangling:          orEmpty(res.Dangling),
		Enrolled:          orEmpty(res.Enrolled),
	})
}

// SyncEnrollments は購入済みコースの受講者一覧にユーザーを登録し直す。
// POST /api/users/me/enrollments/sync
func (h *AccountHandler) SyncEnrollments(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	res, err := h.service.SyncEnrollments(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, syncResponse{
		Enrolled: orEmpty(res.Enrolled),
		Dangling: orEmpty(res.Dangling),
	})
}
