// Package cli はcoursectl管理コマンドを提供する。
// 各サブコマンドはHTTP APIと同じワークフローをストアに対して直接実行する。
package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/hitoshi/courseman/internal/audit"
	"github.com/hitoshi/courseman/internal/enrollment"
	"github.com/hitoshi/courseman/internal/model"
)

// Workflow はCLIが呼び出すワークフロー操作（enrollment.Service が満たす）。
type Workflow interface {
	RegisterUser(ctx context.Context, candidate *model.User, secret string) (*model.User, error)
	ListUsers(ctx context.Context, pageSize int, cursor string) (*enrollment.UserPage, error)
	RemoveUser(ctx context.Context, email string, confirmed bool) (string, error)
	RegisterPurchase(ctx context.Context, email, courseKey string) (*enrollment.PurchaseResult, error)
	AddCourse(ctx context.Context, candidate *model.Course) (*model.Course, error)
	ListCourses(ctx context.Context) ([]*model.Course, error)
	AddToCart(ctx context.Context, userID, courseID string) (*enrollment.CartResult, error)
	RemoveFromCart(ctx context.Context, userID, courseID string) (*enrollment.CartResult, error)
	Checkout(ctx context.Context, userID string) (*enrollment.CheckoutResult, error)
	SyncEnrollments(ctx context.Context, userID string) (*enrollment.SyncResult, error)
}

// Opener はワークフローを開き、後始末の関数と共に返す。
// サブコマンドの実行時に1回だけ呼ばれる。
type Opener func(ctx context.Context) (Workflow, func() error, error)

// DefaultActor は監査ログに記録するCLI実行者の既定値。
const DefaultActor = "coursectl"

// RootOptions は全サブコマンド共通のフラグ。
type RootOptions struct {
	Format string // "text" | "json"
	Actor  string

	open Opener
}

// ValidFormats は指定可能な出力形式。
var ValidFormats = []string{"text", "json"}

// NewRootCommand はcoursectlのルートコマンドを生成する。
func NewRootCommand(open Opener) *cobra.Command {
	opts := &RootOptions{open: open}

	cmd := &cobra.Command{
		Use:   "coursectl",
		Short: "courseman の管理コマンド",
		Long:  "コース・ユーザー・カート・受講登録をストアに対して直接操作する管理コマンド。",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Actor, "actor", DefaultActor, "actor id recorded in audit logs")

	cmd.AddCommand(newAddUserCommand(opts))
	cmd.AddCommand(newListUsersCommand(opts))
	cmd.AddCommand(newRemoveUserCommand(opts))
	cmd.AddCommand(newPurchaseCommand(opts))
	cmd.AddCommand(newAddCourseCommand(opts))
	cmd.AddCommand(newImportCoursesCommand(opts))
	cmd.AddCommand(newListCoursesCommand(opts))
	cmd.AddCommand(newAddToCartCommand(opts))
	cmd.AddCommand(newRemoveFromCartCommand(opts))
	cmd.AddCommand(newCheckoutCommand(opts))
	cmd.AddCommand(newSyncEnrollmentsCommand(opts))

	return cmd
}

// run はワークフローを開いてfnを実行する共通処理。
// fnのエラーは出力形式に従って書き出す。
func (o *RootOptions) run(cmd *cobra.Command, fn func(ctx context.Context, wf Workflow) (any, error)) error {
	out := &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout()}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = audit.WithActor(ctx, o.Actor)

	wf, closeFn, err := o.open(ctx)
	if err != nil {
		return out.FailWithCode(ErrCodeStoreOpen, ExitCommandError, fmt.Errorf("failed to open store: %w", err))
	}
	defer func() {
		if cerr := closeFn(); cerr != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: failed to close store: %v\n", cerr)
		}
	}()

	result, err := fn(ctx, wf)
	if err != nil {
		return out.Fail(err)
	}
	return out.Success(result)
}
