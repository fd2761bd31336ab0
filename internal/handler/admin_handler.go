package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/hitoshi/courseman/internal/enrollment"
)

// AdminServiceInterface は管理者ハンドラーが必要とするサービスインターフェース。
type AdminServiceInterface interface {
	ListUsers(ctx context.Context, pageSize int, cursor string) (*enrollment.UserPage, error)
	RegisterPurchase(ctx context.Context, email, courseKey string) (*enrollment.PurchaseResult, error)
	RemoveUser(ctx context.Context, email string, confirmed bool) (string, error)
}

// AdminHandler は管理者向け操作のHTTPハンドラー。
type AdminHandler struct {
	service AdminServiceInterface
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(service AdminServiceInterface) *AdminHandler {
	return &AdminHandler{service: service}
}

// purchaseRequest は直接購入リクエストのボディ。courseはコースIDまたはコース名のキーワード。
type purchaseRequest struct {
	Email  string `json:"email"`
	Course string `json:"course"`
}

// purchaseResponse は直接購入のAPIレスポンス。
type purchaseResponse struct {
	UserID     string `json:"user_id"`
	CourseID   string `json:"course_id"`
	CourseName string `json:"course_name"`
	Changed    bool   `json:"changed"`
}

// removeUserRequest はユーザー削除リクエストのボディ。confirmがtrueでなければ削除しない。
type removeUserRequest struct {
	Email   string `json:"email"`
	Confirm bool   `json:"confirm"`
}

// userPageResponse はユーザー一覧のAPIレスポンス。next_cursorが空なら最終ページ。
type userPageResponse struct {
	Users      []*userResponse `json:"users"`
	NextCursor string          `json:"next_cursor"`
}

// ListUsers はユーザーをID順にページ単位で返す。
// GET /api/admin/users?page_size=20&cursor=xxx
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	pageSize := 0
	if raw := r.URL.Query().Get("page_size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeAPIErrorResponse(w, http.StatusBadRequest, invalidParamError("page_size"))
			return
		}
		pageSize = n
	}

	page, err := h.service.ListUsers(r.Context(), pageSize, r.URL.Query().Get("cursor"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	users := make([]*userResponse, 0, len(page.Users))
	for _, u := range page.Users {
		users = append(users, toUserResponse(u))
	}
	writeJSON(w, http.StatusOK, userPageResponse{Users: users, NextCursor: page.NextCursor})
}

// RegisterPurchase はメールアドレスとコースキーワードで購入を登録する。
// POST /api/admin/purchases
func (h *AdminHandler) RegisterPurchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.service.RegisterPurchase(r.Context(), req.Email, req.Course)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, purchaseResponse{
		UserID:     res.UserID,
		CourseID:   res.CourseID,
		CourseName: res.CourseName,
		Changed:    res.Changed,
	})
}

// RemoveUser はメールアドレスでユーザーを削除する。受講者一覧からは削除しない。
// DELETE /api/admin/users
func (h *AdminHandler) RemoveUser(w http.ResponseWriter, r *http.Request) {
	var req removeUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	removedID, err := h.service.RemoveUser(r.Context(), req.Email, req.Confirm)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"removed_id": removedID})
}
