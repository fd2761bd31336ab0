package enrollment

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hitoshi/courseman/internal/model"
)

// mockImageChecker は検証したURLを保持し、errを返す。
type mockImageChecker struct {
	checked []string
	err     error
}

func (m *mockImageChecker) CheckImage(_ context.Context, rawURL string) error {
	m.checked = append(m.checked, rawURL)
	return m.err
}

func TestAddCourse_GeneratesIDAndSanitizes(t *testing.T) {
	f := newFixture(t, WithIDGenerator(func() string { return "course-uuid-1" }))

	c, err := f.svc.AddCourse(context.Background(), &model.Course{
		Name:          "  Go Concorrente ",
		Description:   `<p>Goroutines</p><script>alert("x")</script>`,
		DurationHours: 12,
		Price:         199.9,
		Level:         "intermediate",
		EnrolledUsers: []string{"should-be-reset@example.com"},
	})
	if err != nil {
		t.Fatalf("AddCourse: %v", err)
	}
	if c.ID != "course-uuid-1" || c.Name != "Go Concorrente" {
		t.Errorf("course = %+v", c)
	}
	if c.Level != model.LevelIntermediate {
		t.Errorf("Level = %q", c.Level)
	}
	if strings.Contains(c.Description, "script") || !strings.Contains(c.Description, "<p>Goroutines</p>") {
		t.Errorf("Description = %q", c.Description)
	}

	stored := f.course(t, "course-uuid-1")
	if stored.Price != 199.9 || stored.DurationHours != 12 || len(stored.EnrolledUsers) != 0 {
		t.Errorf("stored = %+v", stored)
	}
}

func TestAddCourse_DefaultIDIsUUID(t *testing.T) {
	f := newFixture(t)

	c, err := f.svc.AddCourse(context.Background(), &model.Course{Name: "Rust"})
	if err != nil {
		t.Fatalf("AddCourse: %v", err)
	}
	if len(c.ID) != 36 || strings.Count(c.ID, "-") != 4 {
		t.Errorf("ID = %q, want a UUID", c.ID)
	}
}

// TestAddCourse_NameIsNaturalKey は大文字小文字違いの同名コースを拒否することを検証する。
func TestAddCourse_NameIsNaturalKey(t *testing.T) {
	f := newFixture(t)
	f.seedCourse(t, &model.Course{ID: "go", Name: "Go Básico"})

	_, err := f.svc.AddCourse(context.Background(), &model.Course{Name: "GO BÁSICO"})
	var verr *model.ValidationError
	if !errors.As(err, &verr) || verr.Field != "name" {
		t.Fatalf("expected name validation error, got %v", err)
	}
	if w := f.store.dataWrites(); len(w) != 0 {
		t.Errorf("unexpected writes: %v", w)
	}
}

func TestAddCourse_DuplicateID(t *testing.T) {
	f := newFixture(t)
	f.seedCourse(t, &model.Course{ID: "go", Name: "Go"})

	_, err := f.svc.AddCourse(context.Background(), &model.Course{ID: "go", Name: "Another"})
	var verr *model.ValidationError
	if !errors.As(err, &verr) || verr.Field != "id" {
		t.Errorf("expected id validation error, got %v", err)
	}
}

func TestAddCourse_Validation(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.AddCourse(context.Background(), &model.Course{Name: "Go", Price: -1}); !errors.Is(err, model.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestAddCourse_ImageCheck(t *testing.T) {
	checker := &mockImageChecker{err: &model.ValidationError{Field: model.FieldImageURL, Reason: "not an image"}}
	f := newFixture(t, WithImageChecker(checker))

	_, err := f.svc.AddCourse(context.Background(), &model.Course{Name: "Go", ImageURL: " https://cdn.example.com/go.html "})
	if !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(checker.checked) != 1 || checker.checked[0] != "https://cdn.example.com/go.html" {
		t.Errorf("checked = %v", checker.checked)
	}

	// 画像なしのコースは検証しない
	checker.err = nil
	if _, err := f.svc.AddCourse(context.Background(), &model.Course{Name: "Rust"}); err != nil {
		t.Fatalf("AddCourse: %v", err)
	}
	if len(checker.checked) != 1 {
		t.Errorf("checked = %v", checker.checked)
	}
}

func TestListCourses(t *testing.T) {
	f := newFixture(t)
	f.seedCourse(t, &model.Course{ID: "b", Name: "Rust"})
	f.seedCourse(t, &model.Course{ID: "a", Name: "Go"})

	courses, err := f.svc.ListCourses(context.Background())
	if err != nil {
		t.Fatalf("ListCourses: %v", err)
	}
	if len(courses) != 2 || courses[0].ID != "a" || courses[1].ID != "b" {
		t.Errorf("courses = %+v", courses)
	}
}

// TestService_TimeoutBoundsOperation はタイムアウト切れのコンテキストでストアエラーになることを検証する。
func TestService_TimeoutBoundsOperation(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.svc.ListCourses(ctx); !errors.Is(err, model.ErrTransport) {
		t.Errorf("expected transport error for canceled context, got %v", err)
	}
}
