package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/courseman/internal/enrollment"
	"github.com/hitoshi/courseman/internal/model"
	"github.com/hitoshi/courseman/internal/repository"
)

const validCatalog = `
courses:
  - name: Go入門
    description: "<script>alert(1)</script><p>基礎から</p>"
    duration_hours: 12
    price: 120.5
    category: programming
    level: basic
    instructor: Ana
  - id: rust-101
    name: Rust
    duration_hours: 20
    price: 200
    level: Expert
`

func TestParse_Valid(t *testing.T) {
	cat, err := Parse([]byte(validCatalog))
	require.NoError(t, err)
	require.Len(t, cat.Courses, 2)

	first := cat.Courses[0].Course()
	assert.Equal(t, "Go入門", first.Name)
	assert.Equal(t, 12, first.DurationHours)
	assert.Equal(t, 120.5, first.Price)
	assert.Equal(t, model.LevelBasic, first.Level)

	second := cat.Courses[1].Course()
	assert.Equal(t, "rust-101", second.ID)
	// 定義外の難易度はそのまま保持する
	assert.Equal(t, model.Level("Expert"), second.Level)
}

func TestParse_RejectsUnknownField(t *testing.T) {
	_, err := Parse([]byte(`
courses:
  - name: Go
    prise: 10
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prise")
}

func TestParse_RejectsEmpty(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty document", ""},
		{"no courses", "courses: []\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestParse_ReportsEveryInvalidEntry(t *testing.T) {
	_, err := Parse([]byte(`
courses:
  - name: ""
    price: 1
  - name: Go
    price: -1
  - name: Python
    price: 1
  - name: python
    price: 2
`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrValidation))
	assert.Contains(t, err.Error(), "courses[0]")
	assert.Contains(t, err.Error(), "courses[1] (Go)")
	assert.Contains(t, err.Error(), "courses[3] (python)")
	assert.Contains(t, err.Error(), "duplicates courses[2]")
	assert.NotContains(t, err.Error(), "courses[2] (Python)")
}

// YAMLの .nan / .inf は数値として読めるが、価格としては受け付けない
func TestParse_RejectsNonFinitePrice(t *testing.T) {
	_, err := Parse([]byte(`
courses:
  - name: Go
    price: .nan
  - name: Rust
    price: .inf
`))
	require.Error(t, err)

	var verr *model.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "price", verr.Field)
	assert.Contains(t, err.Error(), "courses[0] (Go)")
	assert.Contains(t, err.Error(), "courses[1] (Rust)")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "courses.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validCatalog), 0o600))

	cat, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cat.Courses, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestImport_AddsAllCourses(t *testing.T) {
	ctx := context.Background()
	svc := enrollment.NewService(repository.NewMemoryStore())
	cat, err := Parse([]byte(validCatalog))
	require.NoError(t, err)

	res, err := Import(ctx, svc, cat, ImportOptions{})
	require.NoError(t, err)
	require.Len(t, res.AddedID, 2)
	assert.Equal(t, "rust-101", res.AddedID[1])
	assert.Empty(t, res.Skipped)

	courses, err := svc.ListCourses(ctx)
	require.NoError(t, err)
	assert.Len(t, courses, 2)
	for _, c := range courses {
		assert.NotContains(t, c.Description, "<script>")
	}
}

func TestImport_DuplicateStopsWithoutSkip(t *testing.T) {
	ctx := context.Background()
	svc := enrollment.NewService(repository.NewMemoryStore())
	_, err := svc.AddCourse(ctx, &model.Course{Name: "rust"})
	require.NoError(t, err)

	cat, err := Parse([]byte(validCatalog))
	require.NoError(t, err)

	res, err := Import(ctx, svc, cat, ImportOptions{})
	require.Error(t, err)

	var entryErr *EntryError
	require.ErrorAs(t, err, &entryErr)
	assert.Equal(t, 1, entryErr.Index)
	assert.True(t, errors.Is(err, model.ErrValidation))
	// 失敗前に登録したコースは残る
	assert.Len(t, res.AddedID, 1)
}

func TestImport_SkipExisting(t *testing.T) {
	ctx := context.Background()
	svc := enrollment.NewService(repository.NewMemoryStore())
	cat, err := Parse([]byte(validCatalog))
	require.NoError(t, err)

	_, err = Import(ctx, svc, cat, ImportOptions{})
	require.NoError(t, err)

	res, err := Import(ctx, svc, cat, ImportOptions{SkipExisting: true})
	require.NoError(t, err)
	assert.Empty(t, res.AddedID)
	require.Len(t, res.Skipped, 2)
	assert.Equal(t, "Go入門", res.Skipped[0].Name)
}

// failingAdder は常に指定のエラーを返す。
type failingAdder struct{ err error }

func (f failingAdder) AddCourse(context.Context, *model.Course) (*model.Course, error) {
	return nil, f.err
}

func TestImport_SkipExistingDoesNotHideOtherErrors(t *testing.T) {
	cat, err := Parse([]byte(validCatalog))
	require.NoError(t, err)

	transport := &model.TransportError{Op: "put", Collection: model.CollectionCourses, Err: errors.New("down")}
	_, err = Import(context.Background(), failingAdder{err: transport}, cat, ImportOptions{SkipExisting: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrTransport))
}

func TestImport_CanceledContext(t *testing.T) {
	cat, err := Parse([]byte(validCatalog))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := Import(ctx, enrollment.NewService(repository.NewMemoryStore()), cat, ImportOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.AddedID)
}
