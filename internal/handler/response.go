package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/courseman/internal/middleware"
	"github.com/hitoshi/courseman/internal/model"
)

// maxRequestBodyBytes はJSONリクエストボディの上限サイズ。
const maxRequestBodyBytes = 1 << 20

// userResponse はユーザー情報のAPIレスポンス。
type userResponse struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	TaxID            string   `json:"tax_id"`
	BirthDate        string   `json:"birth_date"`
	Age              *int     `json:"age,omitempty"`
	Email            string   `json:"email"`
	Phone            string   `json:"phone"`
	Role             string   `json:"role"`
	Cart             []string `json:"cart"`
	PurchasedCourses []string `json:"purchased_courses"`
}

// courseResponse はコース情報のAPIレスポンス。
type courseResponse struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	DurationHours int      `json:"duration_hours"`
	Price         float64  `json:"price"`
	Category      string   `json:"category"`
	Level         string   `json:"level"`
	Instructor    string   `json:"instructor"`
	ImageURL      string   `json:"image_url"`
	EnrolledUsers []string `json:"enrolled_users,omitempty"`
}

func toUserResponse(u *model.User) *userResponse {
	if u == nil {
		return nil
	}
	res := &userResponse{
		ID:               u.ID,
		Name:             u.Name,
		TaxID:            u.TaxID,
		BirthDate:        u.BirthDate,
		Email:            u.Email,
		Phone:            u.Phone,
		Role:             string(u.Role),
		Cart:             orEmpty(u.Cart),
		PurchasedCourses: orEmpty(u.PurchasedCourses),
	}
	if age, ok := u.AgeAt(time.Now()); ok {
		res.Age = &age
	}
	return res
}

// toCourseResponse はコースをレスポンスに変換する。
// 受講者一覧は管理者向けのレスポンスにのみ含める。
func toCourseResponse(c *model.Course, withEnrollment bool) courseResponse {
	res := courseResponse{
		ID:            c.ID,
		Name:          c.Name,
		Description:   c.Description,
		DurationHours: c.DurationHours,
		Price:         c.Price,
		Category:      c.Category,
		Level:         string(c.Level),
		Instructor:    c.Instructor,
		ImageURL:      c.ImageURL,
	}
	if withEnrollment {
		res.EnrolledUsers = orEmpty(c.EnrolledUsers)
	}
	return res
}

func toCourseResponses(courses []*model.Course, withEnrollment bool) []courseResponse {
	out := make([]courseResponse, 0, len(courses))
	for _, c := range courses {
		out = append(out, toCourseResponse(c, withEnrollment))
	}
	return out
}

// orEmpty はnilスライスを空スライスにしてJSONで[]を返すようにする。
func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// decodeJSON はリクエストボディをデコードする。失敗時は400を書き込みfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeAPIErrorResponse(w, http.StatusRequestEntityTooLarge, &model.APIError{
				Code:     "REQUEST_TOO_LARGE",
				Message:  "リクエストボディが大きすぎます。",
				Category: "validation",
				Action:   "入力内容を減らしてください。",
			})
			return false
		}
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return false
	}
	return true
}

// writeAPIErrorResponse は統一エラーフォーマットのレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	middleware.WriteDomainError(w, slog.Default(), err)
}

// requireUserID は認証済みユーザーIDを取得する。取得できない場合は401を書き込む。
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, &model.APIError{
			Code:     "UNAUTHORIZED",
			Message:  "認証が必要です。",
			Category: "auth",
			Action:   "ログインしてください。",
		})
		return "", false
	}
	return userID, true
}

func invalidParamError(name string) *model.APIError {
	return &model.APIError{
		Code:     "INVALID_PARAMETER",
		Message:  "パラメータが不正です: " + name,
		Category: "validation",
		Action:   "パラメータの値を確認してください。",
	}
}
