// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/hitoshi/courseman/internal/enrollment"
	"github.com/hitoshi/courseman/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	RegisterUser(ctx context.Context, candidate *model.User, secret string) (*model.User, error)
	SignIn(ctx context.Context, email, secret string) (*enrollment.SignInResult, error)
	SignOut(ctx context.Context, principalID string) error
}

// AuthHandler はユーザー登録とサインインのHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{service: service}
}

// registerRequest はユーザー登録リクエストのボディ。
// 役割は受け付けず、公開エンドポイントからの登録は常に受講者になる。
type registerRequest struct {
	Name      string `json:"name"`
	TaxID     string `json:"tax_id"`
	BirthDate string `json:"birth_date"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Password  string `json:"password"`
}

// loginRequest はサインインリクエストのボディ。
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginResponse はサインインのAPIレスポンス。
// userはIdPにのみ存在しストアにユーザーがない場合null。
type loginResponse struct {
	Token  string        `json:"token"`
	UserID string        `json:"user_id"`
	User   *userResponse `json:"user"`
}

// Register はIdPとストアにユーザーを登録する。
// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Password) == "" {
		handleServiceError(w, &model.ValidationError{Field: "password", Reason: "required"})
		return
	}

	user, err := h.service.RegisterUser(r.Context(), &model.User{
		Name:      req.Name,
		TaxID:     req.TaxID,
		BirthDate: req.BirthDate,
		Email:     req.Email,
		Phone:     req.Phone,
		Role:      model.RoleStudent,
	}, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

// Login はメールアドレスとパスワードでサインインし、IDトークンを返す。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		handleServiceError(w, &model.ValidationError{Field: "email", Reason: "email and password are required"})
		return
	}

	res, err := h.service.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:  res.Principal.Token,
		UserID: res.Principal.ID,
		User:   toUserResponse(res.User),
	})
}

// Logout はIdPのリフレッシュトークンを失効させる。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.SignOut(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
