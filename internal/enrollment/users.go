package enrollment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hitoshi/courseman/internal/audit"
	"github.com/hitoshi/courseman/internal/auth"
	"github.com/hitoshi/courseman/internal/model"
	"github.com/hitoshi/courseman/internal/repository"
)

// ユーザー一覧のページサイズ
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// UserPage はユーザー一覧の1ページ。
// NextCursor が空の場合は最終ページ。
type UserPage struct {
	Users      []*model.User
	NextCursor string
}

// PurchasedCourses は購入済みコースの参照解決結果。
type PurchasedCourses struct {
	Courses  []*model.Course
	Dangling []string
}

// SignInResult はサインインの結果。User はストアに対応するドキュメントがない場合nil。
type SignInResult struct {
	Principal *auth.Principal
	User      *model.User
}

// RegisterUser はユーザーを検証して登録する。
//
// CPFは数字のみの入力も受け付けて正規形式に整形する。
// 同じCPFまたはメールアドレスのユーザーが既に存在する場合は *model.ValidationError を返し、何も書き込まない。
// secret が空でなければIdPに登録し、発行されたIDをドキュメントIDにする。空ならCPFをIDにする。
func (s *Service) RegisterUser(ctx context.Context, candidate *model.User, secret string) (user *model.User, err error) {
	ctx, cancel := s.begin(ctx)
	defer cancel()
	defer func() { s.finish(ctx, OpRegisterUser, false, err) }()

	u := *candidate
	u.Name = strings.TrimSpace(u.Name)
	u.Email = strings.TrimSpace(u.Email)
	u.TaxID = model.FormatTaxID(u.TaxID)
	u.Role = model.ParseRole(string(u.Role))
	u.Cart = []string{}
	u.PurchasedCourses = []string{}

	if err := model.ValidateUser(&u); err != nil {
		return nil, err
	}
	if err := s.checkUserUnique(ctx, &u); err != nil {
		return nil, err
	}

	u.ID = u.TaxID
	if secret != "" {
		if s.auth == nil {
			return nil, &model.AuthError{Reason: "identity provider is not configured"}
		}
		principalID, err := s.auth.Register(ctx, u.Email, secret)
		if err != nil {
			return nil, err
		}
		u.ID = principalID
	}

	if err := s.store.Put(ctx, model.CollectionUsers, u.ID, model.UserToDocument(&u), repository.IfAbsent()); err != nil {
		if secret != "" {
			return nil, &model.PartialFailureError{
				Committed: []string{"auth/" + u.ID},
				Failed:    []string{ref(model.CollectionUsers, u.ID)},
				Err:       err,
			}
		}
		if errors.Is(err, model.ErrConflict) {
			return nil, &model.ValidationError{Field: "taxId", Reason: "already registered"}
		}
		return nil, fmt.Errorf("failed to save user: %w", err)
	}

	s.recorder.Record(ctx, audit.ActionRegisterUser, audit.ActorFromContext(ctx, u.ID), map[string]any{
		"userId": u.ID,
		"email":  u.Email,
	})
	return &u, nil
}

// checkUserUnique は全ユーザーを走査してCPFとメールアドレスの重複を検査する。
func (s *Service) checkUserUnique(ctx context.Context, u *model.User) error {
	docs, err := s.store.ScanAll(ctx, model.CollectionUsers)
	if err != nil {
		return fmt.Errorf("failed to scan users: %w", err)
	}
	for _, d := range docs {
		if taxID, _ := d.Data[model.FieldTaxID].(string); taxID == u.TaxID {
			return &model.ValidationError{Field: "taxId", Reason: "already registered"}
		}
		if email, _ := d.Data[model.FieldEmail].(string); strings.EqualFold(email, u.Email) {
			return &model.ValidationError{Field: "email", Reason: "already registered"}
		}
	}
	return nil
}

// SignIn はIdPで資格情報を検証し、対応するユーザーを返す。
// ユーザーはIdPのIDで探し、なければメールアドレスで探す（CPFをIDとして登録したユーザー）。
func (s *Service) SignIn(ctx context.Context, email, secret string) (res *SignInResult, err error) {
	ctx, cancel := s.begin(ctx)
	defer cancel()
	defer func() { s.finish(ctx, OpSignIn, false, err) }()

	if s.auth == nil {
		return nil, &model.AuthError{Reason: "identity provider is not configured"}
	}
	principal, err := s.auth.Authenticate(ctx, strings.TrimSpace(email), secret)
	if err != nil {
		return nil, err
	}

	res = &SignInResult{Principal: principal}
	user, _, err := s.loadUser(ctx, principal.ID)
	switch {
	case err == nil:
		res.User = user
	case isNotFound(err):
		if doc, ferr := s.findUserByEmail(ctx, principal.Email); ferr == nil {
			res.User, err = model.UserFromDocument(doc.ID, doc.Data)
			if err != nil {
				return nil, err
			}
		}
	default:
		return nil, err
	}

	actor := principal.ID
	if res.User != nil {
		actor = res.User.ID
	}
	s.recorder.Record(ctx, audit.ActionSignIn, actor, map[string]any{"principalId": principal.ID})
	return res, nil
}

// SignOut はIdP上のトークンを失効させる。
func (s *Service) SignOut(ctx context.Context, principalID string) (err error) {
	ctx, cancel := s.begin(ctx)
	defer cancel()
	defer func() { s.finish(ctx, OpSignOut, false, err) }()

	if s.auth == nil {
		return &model.AuthError{Reason: "identity provider is not configured"}
	}
	if err := s.auth.SignOut(ctx, principalID); err != nil {
		return err
	}
	s.recorder.Record(ctx, audit.ActionSignOut, principalID, nil)
	return nil
}

// GetUser はユーザーを返す。
func (s *Service) GetUser(ctx context.Context, userID string) (*model.User, error) {
	ctx, cancel := s.begin(ctx)
	defer cancel()

	user, _, err := s.loadUser(ctx, userID)
	return user, err
}

// ListUsers はユーザーをID順にページ単位で返す。
// pageSize が0以下なら既定値、上限を超える場合は上限に丸める。
func (s *Service) ListUsers(ctx context.Context, pageSize int, cursor string) (*UserPage, error) {
	ctx, cancel := s.begin(ctx)
	defer cancel()

	switch {
	case pageSize <= 0:
		pageSize = DefaultPageSize
	case pageSize > MaxPageSize:
		pageSize = MaxPageSize
	}

	docs, next, err := s.store.ScanPage(ctx, model.CollectionUsers, pageSize, cursor)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	page := &UserPage{Users: make([]*model.User, 0, len(docs)), NextCursor: next}
	for _, d := range docs {
		u, err := model.UserFromDocument(d.ID, d.Data)
		if err != nil {
			return nil, err
		}
		page.Users = append(page.Users, u)
	}
	return page, nil
}

// GetPurchasedCourses はユーザーの購入済みコースを購入順に解決して返す。
// 存在しないコースIDは除外し、Dangling に入れる。
func (s *Service) GetPurchasedCourses(ctx context.Context, userID string) (*PurchasedCourses, error) {
	ctx, cancel := s.begin(ctx)
	defer cancel()

	_, doc, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	resolved, err := s.resolver.Resolve(ctx, doc, model.FieldPurchasedCourses, model.CollectionCourses)
	if err != nil {
		var serr *model.SchemaError
		if errors.As(err, &serr) && serr.Collection == "" {
			serr.Collection = model.CollectionUsers
		}
		return nil, err
	}

	out := &PurchasedCourses{Courses: make([]*model.Course, 0, len(resolved.Documents)), Dangling: resolved.Dangling}
	for _, d := range resolved.Documents {
		c, err := model.CourseFromDocument(d.ID, d.Data)
		if err != nil {
			return nil, err
		}
		out.Courses = append(out.Courses, c)
	}
	return out, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, model.ErrNotFound)
}
