package enrollment

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"github.com/hitoshi/courseman/internal/audit"
	"github.com/hitoshi/courseman/internal/model"
	"github.com/hitoshi/courseman/internal/repository"
)

// PurchaseResult は直接購入の結果。
type PurchaseResult struct {
	UserID     string
	CourseID   string
	CourseName string
	// Changed はユーザーまたはコースのどちらかを書き換えたかを示す。
	Changed bool
}

// RegisterPurchase はメールアドレスで特定したユーザーに、courseKeyで特定したコースを購入させる。
//
// courseKey はコースIDまたはコース名との完全一致を優先し、
// なければ大文字小文字を区別しない部分一致で検索する。
// 一致が0件なら *model.NotFoundError、複数件なら *model.AmbiguousMatchError を返し、何も書き込まない。
// 書き込みは ユーザー → コース の順で、コース側の失敗は *model.PartialFailureError で返す。
func (s *Service) RegisterPurchase(ctx context.Context, email, courseKey string) (res *PurchaseResult, err error) {
	ctx, cancel := s.begin(ctx)
	defer cancel()
	defer func() { s.finish(ctx, OpRegisterPurchase, res != nil && !res.Changed, err) }()

	email = strings.TrimSpace(email)
	courseKey = strings.TrimSpace(courseKey)
	if email == "" {
		return nil, &model.ValidationError{Field: "email", Reason: "required"}
	}
	if courseKey == "" {
		return nil, &model.ValidationError{Field: "course", Reason: "required"}
	}

	userDoc, err := s.findUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	courseDoc, err := s.findCourse(ctx, courseKey)
	if err != nil {
		return nil, err
	}

	user, err := model.UserFromDocument(userDoc.ID, userDoc.Data)
	if err != nil {
		return nil, err
	}
	course, err := model.CourseFromDocument(courseDoc.ID, courseDoc.Data)
	if err != nil {
		return nil, err
	}

	res = &PurchaseResult{UserID: user.ID, CourseID: course.ID, CourseName: course.Name}

	purchased, addedCourse := model.UnionStrings(user.PurchasedCourses, course.ID)
	var committed []string
	if len(addedCourse) > 0 || user.HasInCart(course.ID) {
		if err := s.store.Patch(ctx, model.CollectionUsers, user.ID, map[string]any{
			model.FieldPurchasedCourses: purchased,
			model.FieldCart:             model.RemoveString(user.Cart, course.ID),
		}, repository.IfVersion(userDoc.Version)); err != nil {
			return nil, fmt.Errorf("failed to write purchase: %w", err)
		}
		res.Changed = true
		committed = append(committed, ref(model.CollectionUsers, user.ID))
	}

	enrolled, err := s.enrollAll(ctx, user, []*repository.Document{courseDoc}, committed)
	if len(enrolled) > 0 {
		res.Changed = true
	}

	if res.Changed {
		s.recorder.Record(ctx, audit.ActionRegisterPurchase, audit.ActorFromContext(ctx, user.ID), map[string]any{
			"userId":   user.ID,
			"courseId": course.ID,
		})
	}
	return res, err
}

// RemoveUser はメールアドレスで特定したユーザーを削除する。
// confirmed が false の場合は何もせず *model.ValidationError を返す。
// コースの受講者一覧とIdP上のアカウントには波及しない。
func (s *Service) RemoveUser(ctx context.Context, email string, confirmed bool) (removedID string, err error) {
	ctx, cancel := s.begin(ctx)
	defer cancel()
	defer func() { s.finish(ctx, OpRemoveUser, false, err) }()

	email = strings.TrimSpace(email)
	if email == "" {
		return "", &model.ValidationError{Field: "email", Reason: "required"}
	}
	if !confirmed {
		return "", &model.ValidationError{Field: "confirm", Reason: "removal must be confirmed"}
	}

	doc, err := s.findUserByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if err := s.store.Delete(ctx, model.CollectionUsers, doc.ID); err != nil {
		return "", fmt.Errorf("failed to remove user: %w", err)
	}

	s.recorder.Record(ctx, audit.ActionRemoveUser, audit.ActorFromContext(ctx, doc.ID), map[string]any{
		"userId": doc.ID,
		"email":  email,
	})
	return doc.ID, nil
}

// findUserByEmail はユーザーコレクションを全件走査してメールアドレスが一致するユーザーを探す。
// ストアに二次インデックスがないため線形走査になる。
func (s *Service) findUserByEmail(ctx context.Context, email string) (*repository.Document, error) {
	docs, err := s.store.ScanAll(ctx, model.CollectionUsers)
	if err != nil {
		return nil, fmt.Errorf("failed to scan users: %w", err)
	}

	var matches []*repository.Document
	for _, d := range docs {
		if v, _ := d.Data[model.FieldEmail].(string); strings.EqualFold(v, email) {
			matches = append(matches, d)
		}
	}
	switch len(matches) {
	case 0:
		return nil, &model.NotFoundError{Collection: model.CollectionUsers, ID: email}
	case 1:
		return matches[0], nil
	}
	return nil, &model.AmbiguousMatchError{Collection: model.CollectionUsers, Key: email, Matches: docIDs(matches)}
}

// findCourse はコースをID、名前の完全一致、名前の部分一致（Unicodeの大文字小文字畳み込み）の順に探す。
func (s *Service) findCourse(ctx context.Context, key string) (*repository.Document, error) {
	doc, err := s.store.Get(ctx, model.CollectionCourses, key)
	if err == nil {
		return doc, nil
	}
	if !isNotFound(err) {
		return nil, err
	}

	docs, err := s.store.ScanAll(ctx, model.CollectionCourses)
	if err != nil {
		return nil, fmt.Errorf("failed to scan courses: %w", err)
	}

	fold := cases.Fold()
	foldedKey := fold.String(key)

	var exact, partial []*repository.Document
	for _, d := range docs {
		name, _ := d.Data[model.FieldName].(string)
		if name == key {
			exact = append(exact, d)
			continue
		}
		if strings.Contains(fold.String(name), foldedKey) {
			partial = append(partial, d)
		}
	}

	matches := exact
	if len(matches) == 0 {
		matches = partial
	}
	switch len(matches) {
	case 0:
		return nil, &model.NotFoundError{Collection: model.CollectionCourses, ID: key}
	case 1:
		return matches[0], nil
	}
	names := make([]string, 0, len(matches))
	for _, d := range matches {
		name, _ := d.Data[model.FieldName].(string)
		names = append(names, name)
	}
	return nil, &model.AmbiguousMatchError{Collection: model.CollectionCourses, Key: key, Matches: names}
}

func docIDs(docs []*repository.Document) []string {
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids
}
