package enrollment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"github.com/hitoshi/courseman/internal/audit"
	"github.com/hitoshi/courseman/internal/model"
	"github.com/hitoshi/courseman/internal/repository"
)

// AddCourse はコースを検証して登録する。
// 説明文はサニタイズし、画像URLは検証器が設定されていれば検証する。
// 同名（大文字小文字を区別しない）のコースが既にあれば *model.ValidationError を返す。
// IDが空の場合はUUIDを発行する。
func (s *Service) AddCourse(ctx context.Context, candidate *model.Course) (course *model.Course, err error) {
	ctx, cancel := s.begin(ctx)
	defer cancel()
	defer func() { s.finish(ctx, OpAddCourse, false, err) }()

	c := *candidate
	c.ID = strings.TrimSpace(c.ID)
	c.Name = strings.TrimSpace(c.Name)
	c.Description = s.sanitizer.Sanitize(c.Description)
	c.ImageURL = strings.TrimSpace(c.ImageURL)
	c.Level = model.ParseLevel(string(c.Level))
	c.EnrolledUsers = []string{}

	if err := model.ValidateCourse(&c); err != nil {
		return nil, err
	}
	if s.images != nil && c.ImageURL != "" {
		if err := s.images.CheckImage(ctx, c.ImageURL); err != nil {
			return nil, err
		}
	}
	if err := s.checkCourseNameUnique(ctx, c.Name); err != nil {
		return nil, err
	}

	if c.ID == "" {
		c.ID = s.newID()
	}
	if err := s.store.Put(ctx, model.CollectionCourses, c.ID, model.CourseToDocument(&c), repository.IfAbsent()); err != nil {
		if errors.Is(err, model.ErrConflict) {
			return nil, &model.ValidationError{Field: "id", Reason: "already exists"}
		}
		return nil, fmt.Errorf("failed to save course: %w", err)
	}

	s.recorder.Record(ctx, audit.ActionAddCourse, audit.ActorFromContext(ctx, c.ID), map[string]any{
		"courseId": c.ID,
		"name":     c.Name,
	})
	return &c, nil
}

func (s *Service) checkCourseNameUnique(ctx context.Context, name string) error {
	docs, err := s.store.ScanAll(ctx, model.CollectionCourses)
	if err != nil {
		return fmt.Errorf("failed to scan courses: %w", err)
	}
	fold := cases.Fold()
	folded := fold.String(name)
	for _, d := range docs {
		if existing, _ := d.Data[model.FieldName].(string); fold.String(existing) == folded {
			return &model.ValidationError{Field: "name", Reason: "already registered"}
		}
	}
	return nil
}

// ListCourses は全コースをID順に返す。
func (s *Service) ListCourses(ctx context.Context) ([]*model.Course, error) {
	ctx, cancel := s.begin(ctx)
	defer cancel()

	docs, err := s.store.ScanAll(ctx, model.CollectionCourses)
	if err != nil {
		return nil, fmt.Errorf("failed to list courses: %w", err)
	}
	courses := make([]*model.Course, 0, len(docs))
	for _, d := range docs {
		c, err := model.CourseFromDocument(d.ID, d.Data)
		if err != nil {
			return nil, err
		}
		courses = append(courses, c)
	}
	return courses, nil
}
