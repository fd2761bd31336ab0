package enrollment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/courseman/internal/audit"
	"github.com/hitoshi/courseman/internal/model"
	"github.com/hitoshi/courseman/internal/repository"
)

// CartResult はカート操作の結果。
type CartResult struct {
	Cart    []string
	Changed bool
}

// CheckoutResult はチェックアウトの結果。
type CheckoutResult struct {
	// NothingToPurchase はカートが空で何もしなかったことを示す。
	NothingToPurchase bool
	// Purchased は書き込み後の購入済みコースID。
	Purchased []string
	// Added は今回新たに購入済みになったコースID。
	Added []string
	// Dangling はカートにあったが存在しなかったコースID（購入されずカートから除去）。
	Dangling []string
	// Enrolled は今回ユーザーを受講者に追加したコースID。
	Enrolled []string
}

// SyncResult は受講登録の同期結果。
type SyncResult struct {
	Enrolled []string
	Dangling []string
}

// AddToCart はコースをカートに追加する。既に入っていれば何もしない。
// Courseドキュメントは読まない（存在確認はチェックアウト時に行う）。
func (s *Service) AddToCart(ctx context.Context, userID, courseID string) (res *CartResult, err error) {
	ctx, cancel := s.begin(ctx)
	defer cancel()
	defer func() { s.finish(ctx, OpAddToCart, res != nil && !res.Changed, err) }()

	courseID = strings.TrimSpace(courseID)
	if courseID == "" {
		return nil, &model.ValidationError{Field: "courseId", Reason: "required"}
	}

	user, doc, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.HasInCart(courseID) {
		return &CartResult{Cart: user.Cart}, nil
	}

	cart := append(user.Cart, courseID)
	if err := s.store.Patch(ctx, model.CollectionUsers, userID,
		map[string]any{model.FieldCart: cart}, repository.IfVersion(doc.Version)); err != nil {
		return nil, fmt.Errorf("failed to update cart: %w", err)
	}

	s.recorder.Record(ctx, audit.ActionAddToCart, audit.ActorFromContext(ctx, userID),
		map[string]any{"userId": userID, "courseId": courseID})
	return &CartResult{Cart: cart, Changed: true}, nil
}

// RemoveFromCart はコースをカートから取り除く。入っていなければ何もしない。
func (s *Service) RemoveFromCart(ctx context.Context, userID, courseID string) (res *CartResult, err error) {
	ctx, cancel := s.begin(ctx)
	defer cancel()
	defer func() { s.finish(ctx, OpRemoveFromCart, res != nil && !res.Changed, err) }()

	courseID = strings.TrimSpace(courseID)
	if courseID == "" {
		return nil, &model.ValidationError{Field: "courseId", Reason: "required"}
	}

	user, doc, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.HasInCart(courseID) {
		return &CartResult{Cart: user.Cart}, nil
	}

	cart := model.RemoveString(user.Cart, courseID)
	if err := s.store.Patch(ctx, model.CollectionUsers, userID,
		map[string]any{model.FieldCart: cart}, repository.IfVersion(doc.Version)); err != nil {
		return nil, fmt.Errorf("failed to update cart: %w", err)
	}

	s.recorder.Record(ctx, audit.ActionRemoveFromCart, audit.ActorFromContext(ctx, userID),
		map[string]any{"userId": userID, "courseId": courseID})
	return &CartResult{Cart: cart, Changed: true}, nil
}

// Checkout はカートの中身を購入済みに移し、購入したコースの受講者にユーザーを追加する。
//
// 購入済みへの追加は集合の和で行うため、再実行しても重複しない。
// ユーザーへの書き込み（購入済みとカートのクリアを1回で）が成功した後に
// 各コースへ書き込み、コース側の失敗は *model.PartialFailureError で返す。
// 存在しないコースIDは購入せずにカートから除去する。
func (s *Service) Checkout(ctx context.Context, userID string) (res *CheckoutResult, err error) {
	ctx, cancel := s.begin(ctx)
	defer cancel()
	defer func() { s.finish(ctx, OpCheckout, res != nil && res.NothingToPurchase, err) }()

	user, doc, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(user.Cart) == 0 {
		return &CheckoutResult{NothingToPurchase: true, Purchased: user.PurchasedCourses}, nil
	}

	resolved, err := s.resolver.ResolveIDs(ctx, user.Cart, model.CollectionCourses)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cart: %w", err)
	}

	purchased, added := model.UnionStrings(user.PurchasedCourses, resolved.IDs()...)
	if err := s.store.Patch(ctx, model.CollectionUsers, userID, map[string]any{
		model.FieldPurchasedCourses: purchased,
		model.FieldCart:             []string{},
	}, repository.IfVersion(doc.Version)); err != nil {
		return nil, fmt.Errorf("failed to write purchase: %w", err)
	}

	res = &CheckoutResult{
		Purchased: purchased,
		Added:     added,
		Dangling:  resolved.Dangling,
	}

	res.Enrolled, err = s.enrollAll(ctx, user, resolved.Documents,
		[]string{ref(model.CollectionUsers, userID)})

	s.recorder.Record(ctx, audit.ActionCheckout, audit.ActorFromContext(ctx, userID), map[string]any{
		"userId":   userID,
		"courses":  nonNil(added),
		"dangling": nonNil(resolved.Dangling),
	})
	return res, err
}

// SyncEnrollments は購入済みコースのうち、受講者にユーザーが含まれていないものへ追加する。
// Checkout/RegisterPurchase の部分失敗からの回復に使う。
func (s *Service) SyncEnrollments(ctx context.Context, userID string) (res *SyncResult, err error) {
	ctx, cancel := s.begin(ctx)
	defer cancel()
	defer func() { s.finish(ctx, OpSyncEnrollments, res != nil && len(res.Enrolled) == 0, err) }()

	user, doc, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	resolved, err := s.resolver.Resolve(ctx, doc, model.FieldPurchasedCourses, model.CollectionCourses)
	if err != nil {
		return nil, err
	}

	res = &SyncResult{Dangling: resolved.Dangling}
	res.Enrolled, err = s.enrollAll(ctx, user, resolved.Documents, nil)

	if len(res.Enrolled) > 0 {
		s.recorder.Record(ctx, audit.ActionSyncEnrollments, audit.ActorFromContext(ctx, userID), map[string]any{
			"userId":  userID,
			"courses": res.Enrolled,
		})
	}
	return res, err
}

// enrollAll は各コースの受講者にユーザーのメールアドレスを追加する。
// 追加したコースIDを返し、失敗したコースがあれば *model.PartialFailureError を返す。
// committed には既に書き込み済みのドキュメントを渡す。
func (s *Service) enrollAll(ctx context.Context, user *model.User, courses []*repository.Document, committed []string) ([]string, error) {
	var (
		enrolled []string
		failed   []string
		errs     []error
	)
	for _, doc := range courses {
		changed, err := s.enroll(ctx, doc, user.Email)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to enroll user into course",
				slog.String("user_id", user.ID),
				slog.String("course_id", doc.ID),
				slog.String("error", err.Error()),
			)
			failed = append(failed, ref(model.CollectionCourses, doc.ID))
			errs = append(errs, err)
			continue
		}
		if changed {
			enrolled = append(enrolled, doc.ID)
			committed = append(committed, ref(model.CollectionCourses, doc.ID))
		}
	}
	if len(failed) > 0 {
		return enrolled, &model.PartialFailureError{
			Committed: committed,
			Failed:    failed,
			Err:       errors.Join(errs...),
		}
	}
	return enrolled, nil
}

// enroll はコースの受講者にemailを集合の和として追加する。
// 既に登録済みなら書き込まずfalseを返す。バージョン競合時は再読込してやり直す。
func (s *Service) enroll(ctx context.Context, doc *repository.Document, email string) (bool, error) {
	for attempt := 1; ; attempt++ {
		course, err := model.CourseFromDocument(doc.ID, doc.Data)
		if err != nil {
			return false, err
		}
		enrolled, added := model.UnionStrings(course.EnrolledUsers, email)
		if len(added) == 0 {
			return false, nil
		}

		err = s.store.Patch(ctx, model.CollectionCourses, doc.ID,
			map[string]any{model.FieldEnrolledUsers: enrolled}, repository.IfVersion(doc.Version))
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, model.ErrConflict) || attempt >= maxEnrollAttempts {
			return false, err
		}

		if doc, err = s.store.Get(ctx, model.CollectionCourses, doc.ID); err != nil {
			return false, err
		}
	}
}

// loadUser はユーザーを読み込み、バージョン付きのドキュメントと共に返す。
func (s *Service) loadUser(ctx context.Context, userID string) (*model.User, *repository.Document, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, nil, &model.ValidationError{Field: "userId", Reason: "required"}
	}
	doc, err := s.store.Get(ctx, model.CollectionUsers, userID)
	if err != nil {
		return nil, nil, err
	}
	user, err := model.UserFromDocument(doc.ID, doc.Data)
	if err != nil {
		return nil, nil, err
	}
	return user, doc, nil
}

func ref(collection, id string) string {
	return collection + "/" + id
}

func isPartialFailure(err error) bool {
	return errors.Is(err, model.ErrPartialFailure)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
