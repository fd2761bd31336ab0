package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/courseman/internal/model"
)

// CourseServiceInterface はコースハンドラーが必要とするサービスインターフェース。
type CourseServiceInterface interface {
	ListCourses(ctx context.Context) ([]*model.Course, error)
	AddCourse(ctx context.Context, candidate *model.Course) (*model.Course, error)
}

// CourseHandler はコースカタログのHTTPハンドラー。
type CourseHandler struct {
	service CourseServiceInterface
}

// NewCourseHandler はCourseHandlerを生成する。
func NewCourseHandler(service CourseServiceInterface) *CourseHandler {
	return &CourseHandler{service: service}
}

// addCourseRequest はコース追加リクエストのボディ。idを省略するとUUIDを採番する。
type addCourseRequest struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Description   string  `json:"description"`
	DurationHours int     `json:"duration_hours"`
	Price         float64 `json:"price"`
	Category      string  `json:"category"`
	Level         string  `json:"level"`
	Instructor    string  `json:"instructor"`
	ImageURL      string  `json:"image_url"`
}

// ListCourses はコース一覧をID順に返す。受講者一覧は含めない。
// GET /api/courses
func (h *CourseHandler) ListCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := h.service.ListCourses(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"courses": toCourseResponses(courses, false),
	})
}

// AddCourse はコースを追加する。管理者のみ。
// POST /api/admin/courses
func (h *CourseHandler) AddCourse(w http.ResponseWriter, r *http.Request) {
	var req addCourseRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	course, err := h.service.AddCourse(r.Context(), &model.Course{
		ID:            req.ID,
		Name:          req.Name,
		Description:   req.Description,
		DurationHours: req.DurationHours,
		Price:         req.Price,
		Category:      req.Category,
		Level:         model.Level(req.Level),
		Instructor:    req.Instructor,
		ImageURL:      req.ImageURL,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toCourseResponse(course, true))
}
