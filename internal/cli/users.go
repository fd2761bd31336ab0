package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hitoshi/courseman/internal/enrollment"
	"github.com/hitoshi/courseman/internal/model"
)

// userView はユーザーの出力形式。
type userView struct {
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

func toUserView(u *model.User) userView {
	v := userView{
		ID:               u.ID,
		Name:             u.Name,
		TaxID:            u.TaxID,
		BirthDate:        u.BirthDate,
		Email:            u.Email,
		Phone:            u.Phone,
		Role:             string(u.Role),
		Cart:             nonNil(u.Cart),
		PurchasedCourses: nonNil(u.PurchasedCourses),
	}
	if age, ok := u.AgeAt(time.Now()); ok {
		v.Age = &age
	}
	return v
}

func (v userView) renderText(w io.Writer) {
	age := "-"
	if v.Age != nil {
		age = strconv.Itoa(*v.Age)
	}
	fmt.Fprintf(w, "%s\t%s <%s>\t%s\tage %s\n", v.ID, v.Name, v.Email, v.Role, age)
}

type userListView struct {
	Users      []userView `json:"users"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

func (v userListView) renderText(w io.Writer) {
	for _, u := range v.Users {
		u.renderText(w)
	}
	if v.NextCursor != "" {
		fmt.Fprintf(w, "next cursor: %s\n", v.NextCursor)
	}
}

type removedUserView struct {
	RemovedID string `json:"removed_id"`
}

func (v removedUserView) renderText(w io.Writer) {
	fmt.Fprintf(w, "removed user %s\n", v.RemovedID)
}

type purchaseView struct {
	UserID     string `json:"user_id"`
	CourseID   string `json:"course_id"`
	CourseName string `json:"course_name"`
	Changed    bool   `json:"changed"`
}

func (v purchaseView) renderText(w io.Writer) {
	if !v.Changed {
		fmt.Fprintf(w, "%s already owns %s (%s); nothing changed\n", v.UserID, v.CourseName, v.CourseID)
		return
	}
	fmt.Fprintf(w, "%s purchased %s (%s)\n", v.UserID, v.CourseName, v.CourseID)
}

type addUserOptions struct {
	name      string
	taxID     string
	birthDate string
	email     string
	phone     string
	role      string
	password  string
}

func newAddUserCommand(root *RootOptions) *cobra.Command {
	opts := &addUserOptions{}
	cmd := &cobra.Command{
		Use:   "add-user",
		Short: "Register a user",
		Long: `Register a user after validating every field.

The tax id may be given as 11 digits; it is stored as NNN.NNN.NNN-NN.
With --password the user is also created in the identity provider.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.run(cmd, func(ctx context.Context, wf Workflow) (any, error) {
				u, err := wf.RegisterUser(ctx, &model.User{
					Name:      opts.name,
					TaxID:     opts.taxID,
					BirthDate: opts.birthDate,
					Email:     opts.email,
					Phone:     opts.phone,
					Role:      model.ParseRole(opts.role),
				}, opts.password)
				if err != nil {
					return nil, err
				}
				return toUserView(u), nil
			})
		},
	}

	cmd.Flags().StringVar(&opts.name, "name", "", "full name")
	cmd.Flags().StringVar(&opts.taxID, "tax-id", "", "CPF (NNN.NNN.NNN-NN or 11 digits)")
	cmd.Flags().StringVar(&opts.birthDate, "birth-date", "", "birth date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.email, "email", "", "email address")
	cmd.Flags().StringVar(&opts.phone, "phone", "", "phone (99999-9999)")
	cmd.Flags().StringVar(&opts.role, "role", string(model.RoleStudent), "role (Student|Teacher|Admin)")
	cmd.Flags().StringVar(&opts.password, "password", "", "password for the identity provider (optional)")
	return cmd
}

func newListUsersCommand(root *RootOptions) *cobra.Command {
	var (
		pageSize int
		cursor   string
	)
	cmd := &cobra.Command{
		Use:   "list-users",
		Short: "List users one page at a time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.run(cmd, func(ctx context.Context, wf Workflow) (any, error) {
				page, err := wf.ListUsers(ctx, pageSize, cursor)
				if err != nil {
					return nil, err
				}
				view := userListView{Users: make([]userView, 0, len(page.Users)), NextCursor: page.NextCursor}
				for _, u := range page.Users {
					view.Users = append(view.Users, toUserView(u))
				}
				return view, nil
			})
		},
	}
	cmd.Flags().IntVar(&pageSize, "page-size", enrollment.DefaultPageSize,
		fmt.Sprintf("users per page (max %d)", enrollment.MaxPageSize))
	cmd.Flags().StringVar(&cursor, "cursor", "", "cursor returned by the previous page")
	return cmd
}

func newRemoveUserCommand(root *RootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "remove-user <email>",
		Short: "Remove a user by email",
		Long: `Remove a user by email.

Without --yes the command asks for confirmation on stdin.
Course enrollment lists and the identity provider account are left untouched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			email := args[0]
			confirmed := yes
			if !confirmed {
				confirmed = confirm(cmd.InOrStdin(), cmd.ErrOrStderr(), fmt.Sprintf("Remove user %s?", email))
			}
			return root.run(cmd, func(ctx context.Context, wf Workflow) (any, error) {
				id, err := wf.RemoveUser(ctx, email, confirmed)
				if err != nil {
					return nil, err
				}
				return removedUserView{RemovedID: id}, nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func newPurchaseCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "purchase <email> <course>",
		Short: "Register a purchase for a user",
		Long: `Register a purchase for the user with the given email.

<course> is matched against course ids and exact names first, then as a
case-insensitive substring of the name. More than one match is an error.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.run(cmd, func(ctx context.Context, wf Workflow) (any, error) {
				res, err := wf.RegisterPurchase(ctx, args[0], args[1])
				if err != nil {
					return nil, err
				}
				return purchaseView{
					UserID:     res.UserID,
					CourseID:   res.CourseID,
					CourseName: res.CourseName,
					Changed:    res.Changed,
				}, nil
			})
		},
	}
}

// confirm はy/yesの入力で確認を得る。
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
