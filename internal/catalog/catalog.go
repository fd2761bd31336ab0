// Package catalog はYAMLで記述したコースカタログの読み込みと一括登録を提供する。
//
// カタログの形式:
//
//	courses:
//	  - name: Go入門
//	    price: 120
//	    duration_hours: 12
//	    level: basic
package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"

	"github.com/hitoshi/courseman/internal/model"
)

// Entry はカタログ内の1コース。
type Entry struct {
	ID            string  `yaml:"id,omitempty" json:"id,omitempty"`
	Name          string  `yaml:"name" json:"name"`
	Description   string  `yaml:"description,omitempty" json:"description,omitempty"`
	DurationHours int     `yaml:"duration_hours" json:"duration_hours"`
	Price         float64 `yaml:"price" json:"price"`
	Category      string  `yaml:"category,omitempty" json:"category,omitempty"`
	Level         string  `yaml:"level,omitempty" json:"level,omitempty"`
	Instructor    string  `yaml:"instructor,omitempty" json:"instructor,omitempty"`
	ImageURL      string  `yaml:"image_url,omitempty" json:"image_url,omitempty"`
}

// Course はエントリをドメインモデルに変換する。
func (e Entry) Course() *model.Course {
	return &model.Course{
		ID:            strings.TrimSpace(e.ID),
		Name:          strings.TrimSpace(e.Name),
		Description:   e.Description,
		DurationHours: e.DurationHours,
		Price:         e.Price,
		Category:      e.Category,
		Level:         model.ParseLevel(e.Level),
		Instructor:    e.Instructor,
		ImageURL:      strings.TrimSpace(e.ImageURL),
	}
}

// Catalog はカタログファイル全体。
type Catalog struct {
	Courses []Entry `yaml:"courses"`
}

// EntryError はカタログ内の特定エントリの不備を表す。
type EntryError struct {
	Index int // 0始まり
	Name  string
	Err   error
}

func (e *EntryError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("courses[%d]: %v", e.Index, e.Err)
	}
	return fmt.Sprintf("courses[%d] (%s): %v", e.Index, e.Name, e.Err)
}

func (e *EntryError) Unwrap() error { return e.Err }

// Load はファイルからカタログを読み込む。
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Parse はYAMLを解析して検証する。
// 未知のフィールド、空のカタログ、ファイル内での名前の重複はエラーにする。
func Parse(data []byte) (*Catalog, error) {
	var cat Catalog
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cat); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("catalog is empty")
		}
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if len(cat.Courses) == 0 {
		return nil, errors.New("catalog has no courses")
	}
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return &cat, nil
}

// Validate は各エントリをコースとして検証し、名前の重複を検出する。
func (c *Catalog) Validate() error {
	fold := cases.Fold()
	seen := make(map[string]int, len(c.Courses))
	var errs []error
	for i, e := range c.Courses {
		course := e.Course()
		if err := model.ValidateCourse(course); err != nil {
			errs = append(errs, &EntryError{Index: i, Name: course.Name, Err: err})
			continue
		}
		key := fold.String(course.Name)
		if first, ok := seen[key]; ok {
			errs = append(errs, &EntryError{
				Index: i,
				Name:  course.Name,
				Err:   &model.ValidationError{Field: "name", Reason: fmt.Sprintf("duplicates courses[%d]", first)},
			})
			continue
		}
		seen[key] = i
	}
	return errors.Join(errs...)
}
