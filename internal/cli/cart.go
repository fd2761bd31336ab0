package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hitoshi/courseman/internal/enrollment"
)

type cartView struct {
	Cart    []string `json:"cart"`
	Changed bool     `json:"changed"`
}

func (v cartView) renderText(w io.Writer) {
	state := "unchanged"
	if v.Changed {
		state = "updated"
	}
	fmt.Fprintf(w, "cart %s: [%s]\n", state, strings.Join(v.Cart, ", "))
}

type checkoutView struct {
	NothingToPurchase bool     `json:"nothing_to_purchase"`
	Purchased         []string `json:"purchased"`
	Added             []string `json:"added"`
	Enrolled          []string `json:"enrolled"`
	Dangling          []string `json:"dangling"`
}

func (v checkoutView) renderText(w io.Writer) {
	if v.NothingToPurchase {
		fmt.Fprintln(w, "cart is empty; nothing to purchase")
		return
	}
	fmt.Fprintf(w, "purchased: [%s]\n", strings.Join(v.Added, ", "))
	fmt.Fprintf(w, "enrolled:  [%s]\n", strings.Join(v.Enrolled, ", "))
	if len(v.Dangling) > 0 {
		fmt.Fprintf(w, "dropped missing courses: [%s]\n", strings.Join(v.Dangling, ", "))
	}
}

type syncView struct {
	Enrolled []string `json:"enrolled"`
	Dangling []string `json:"dangling"`
}

func (v syncView) renderText(w io.Writer) {
	fmt.Fprintf(w, "enrolled: [%s]\n", strings.Join(v.Enrolled, ", "))
	if len(v.Dangling) > 0 {
		fmt.Fprintf(w, "missing courses: [%s]\n", strings.Join(v.Dangling, ", "))
	}
}

func newAddToCartCommand(root *RootOptions) *cobra.Command {
	return newCartCommand(root, "add-to-cart", "Add a course to a user's cart", Workflow.AddToCart)
}

func newRemoveFromCartCommand(root *RootOptions) *cobra.Command {
	return newCartCommand(root, "remove-from-cart", "Remove a course from a user's cart", Workflow.RemoveFromCart)
}

func newCartCommand(
	root *RootOptions,
	name, short string,
	op func(Workflow, context.Context, string, string) (*enrollment.CartResult, error),
) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <user-id> <course-id>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.run(cmd, func(ctx context.Context, wf Workflow) (any, error) {
				res, err := op(wf, ctx, args[0], args[1])
				if err != nil {
					return nil, err
				}
				return cartView{Cart: nonNil(res.Cart), Changed: res.Changed}, nil
			})
		},
	}
}

func newCheckoutCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "checkout <user-id>",
		Short: "Purchase every course in a user's cart",
		Long: `Purchase every course in the user's cart and enroll the user in each one.

Courses that no longer exist are dropped from the cart. When the user is
saved but a course could not be updated, the command fails with
PARTIAL_FAILURE; run sync-enrollments to repair it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.run(cmd, func(ctx context.Context, wf Workflow) (any, error) {
				res, err := wf.Checkout(ctx, args[0])
				if err != nil {
					return nil, err
				}
				return checkoutView{
					NothingToPurchase: res.NothingToPurchase,
					Purchased:         nonNil(res.Purchased),
					Added:             nonNil(res.Added),
					Enrolled:          nonNil(res.Enrolled),
					Dangling:          nonNil(res.Dangling),
				}, nil
			})
		},
	}
}

func newSyncEnrollmentsCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync-enrollments <user-id>",
		Short: "Enroll a user in every purchased course",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.run(cmd, func(ctx context.Context, wf Workflow) (any, error) {
				res, err := wf.SyncEnrollments(ctx, args[0])
				if err != nil {
					return nil, err
				}
				return syncView{Enrolled: nonNil(res.Enrolled), Dangling: nonNil(res.Dangling)}, nil
			})
		},
	}
}
