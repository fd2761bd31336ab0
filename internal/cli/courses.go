package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/hitoshi/courseman/internal/catalog"
	"github.com/hitoshi/courseman/internal/model"
)

// courseView はコースの出力形式。
type courseView struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	DurationHours int      `json:"duration_hours"`
	Price         float64  `json:"price"`
	Category      string   `json:"category"`
	Level         string   `json:"level"`
	Instructor    string   `json:"instructor"`
	ImageURL      string   `json:"image_url"`
	EnrolledUsers []string `json:"enrolled_users"`
}

func toCourseView(c *model.Course) courseView {
	return courseView{
		ID:            c.ID,
		Name:          c.Name,
		Description:   c.Description,
		DurationHours: c.DurationHours,
		Price:         c.Price,
		Category:      c.Category,
		Level:         string(c.Level),
		Instructor:    c.Instructor,
		ImageURL:      c.ImageURL,
		EnrolledUsers: nonNil(c.EnrolledUsers),
	}
}

func (v courseView) renderText(w io.Writer) {
	fmt.Fprintf(w, "%s\t%s\t%.2f\t%dh\t%s\t%d enrolled\n",
		v.ID, v.Name, v.Price, v.DurationHours, v.Level, len(v.EnrolledUsers))
}

type courseListView struct {
	Courses []courseView `json:"courses"`
}

func (v courseListView) renderText(w io.Writer) {
	if len(v.Courses) == 0 {
		fmt.Fprintln(w, "no courses")
		return
	}
	for _, c := range v.Courses {
		c.renderText(w)
	}
}

type importView struct {
	Added   []string          `json:"added"`
	Skipped []catalog.Skipped `json:"skipped"`
}

func (v importView) renderText(w io.Writer) {
	fmt.Fprintf(w, "imported %d course(s), skipped %d\n", len(v.Added), len(v.Skipped))
	for _, s := range v.Skipped {
		fmt.Fprintf(w, "  skipped %s: %s\n", s.Name, s.Reason)
	}
}

func newAddCourseCommand(root *RootOptions) *cobra.Command {
	var entry catalog.Entry
	cmd := &cobra.Command{
		Use:   "add-course",
		Short: "Add a course",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.run(cmd, func(ctx context.Context, wf Workflow) (any, error) {
				c, err := wf.AddCourse(ctx, entry.Course())
				if err != nil {
					return nil, err
				}
				return toCourseView(c), nil
			})
		},
	}
	cmd.Flags().StringVar(&entry.ID, "id", "", "course id (generated when empty)")
	cmd.Flags().StringVar(&entry.Name, "name", "", "course name (unique)")
	cmd.Flags().StringVar(&entry.Description, "description", "", "description (limited HTML)")
	cmd.Flags().IntVar(&entry.DurationHours, "duration", 0, "duration in hours")
	cmd.Flags().Float64Var(&entry.Price, "price", 0, "price")
	cmd.Flags().StringVar(&entry.Category, "category", "", "category")
	cmd.Flags().StringVar(&entry.Level, "level", "", "level (Basic|Intermediate|Advanced)")
	cmd.Flags().StringVar(&entry.Instructor, "instructor", "", "instructor name")
	cmd.Flags().StringVar(&entry.ImageURL, "image-url", "", "cover image URL (https)")
	return cmd
}

func newImportCoursesCommand(root *RootOptions) *cobra.Command {
	var skipExisting bool
	cmd := &cobra.Command{
		Use:   "import-courses <catalog.yaml>",
		Short: "Add every course in a YAML catalog",
		Long: `Add every course listed in a YAML catalog.

The whole file is validated before anything is written. Courses are then
added in file order; a failure stops the import and keeps the courses
added so far.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Load(args[0])
			if err != nil {
				out := &OutputFormatter{Format: root.Format, Writer: cmd.OutOrStdout()}
				return out.FailWithCode(ErrCodeInvalidCatalog, ExitCommandError, err)
			}
			return root.run(cmd, func(ctx context.Context, wf Workflow) (any, error) {
				res, err := catalog.Import(ctx, wf, cat, catalog.ImportOptions{
					SkipExisting: skipExisting,
					Logger:       slog.Default(),
				})
				if err != nil {
					return nil, err
				}
				return importView{Added: res.AddedID, Skipped: res.Skipped}, nil
			})
		},
	}
	cmd.Flags().BoolVar(&skipExisting, "skip-existing", false, "skip courses that are already registered")
	return cmd
}

func newListCoursesCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list-courses",
		Short: "List all courses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.run(cmd, func(ctx context.Context, wf Workflow) (any, error) {
				courses, err := wf.ListCourses(ctx)
				if err != nil {
					return nil, err
				}
				view := courseListView{Courses: make([]courseView, 0, len(courses))}
				for _, c := range courses {
					view.Courses = append(view.Courses, toCourseView(c))
				}
				return view, nil
			})
		},
	}
}
