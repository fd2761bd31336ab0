package catalog

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hitoshi/courseman/internal/model"
)

// CourseAdder はコースを1件登録する（enrollment.Service が満たす）。
type CourseAdder interface {
	AddCourse(ctx context.Context, candidate *model.Course) (*model.Course, error)
}

// Skipped は登録しなかったエントリ。
type Skipped struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// ImportResult は一括登録の結果。
type ImportResult struct {
	Added   []*model.Course `json:"-"`
	AddedID []string        `json:"added"`
	Skipped []Skipped       `json:"skipped"`
}

// ImportOptions は一括登録の動作を指定する。
type ImportOptions struct {
	// SkipExisting は登録済みの名前・IDのコースをエラーにせず読み飛ばす。
	SkipExisting bool
	Logger       *slog.Logger
}

// Import はカタログのコースを先頭から順に登録する。
// 途中で失敗した場合はそれまでの結果とともにエラーを返す。登録済みのコースは取り消さない。
func Import(ctx context.Context, adder CourseAdder, cat *Catalog, opts ImportOptions) (*ImportResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	res := &ImportResult{AddedID: []string{}, Skipped: []Skipped{}}
	for i, e := range cat.Courses {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		course, err := adder.AddCourse(ctx, e.Course())
		if err != nil {
			if opts.SkipExisting && isDuplicate(err) {
				logger.Info("course already registered; skipping",
					slog.Int("index", i),
					slog.String("name", e.Name),
				)
				res.Skipped = append(res.Skipped, Skipped{Name: e.Name, Reason: err.Error()})
				continue
			}
			return res, &EntryError{Index: i, Name: e.Name, Err: err}
		}
		res.Added = append(res.Added, course)
		res.AddedID = append(res.AddedID, course.ID)
	}

	logger.Info("course catalog imported",
		slog.Int("added_count", len(res.AddedID)),
		slog.Int("skipped_count", len(res.Skipped)),
	)
	return res, nil
}

// isDuplicate は名前またはIDの重複による検証エラーかを判定する。
func isDuplicate(err error) bool {
	var ve *model.ValidationError
	if !errors.As(err, &ve) {
		return false
	}
	return (ve.Field == "name" && ve.Reason == "already registered") ||
		(ve.Field == "id" && ve.Reason == "already exists")
}
