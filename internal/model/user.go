// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// コレクション名
const (
	CollectionUsers   = "users"
	CollectionCourses = "courses"
	CollectionLogs    = "logs"
)

// Role はユーザーの役割を表す。定義外の値も自由入力として保持する。
type Role string

const (
	RoleStudent Role = "Student"
	RoleTeacher Role = "Teacher"
	RoleAdmin   Role = "Admin"
)

// ParseRole は大文字小文字を無視して既知の役割に正規化する。
// 既知の値でなければ入力をそのまま返す。
func ParseRole(s string) Role {
	s = strings.TrimSpace(s)
	for _, r := range []Role{RoleStudent, RoleTeacher, RoleAdmin} {
		if strings.EqualFold(s, string(r)) {
			return r
		}
	}
	return Role(s)
}

// User はサービス利用ユーザーを表す。
// IDは正規化済みCPF、またはIdP経由で登録した場合はプリンシパルID。
type User struct {
	ID               string
	Name             string
	TaxID            string // NNN.NNN.NNN-NN
	BirthDate        string // 2006-01-02
	Email            string
	Phone            string // 99999-9999
	Role             Role
	Cart             []string // コースID（順序あり、重複なし）
	PurchasedCourses []string // コースID（集合、表示用に挿入順を保持）
}

// HasInCart はコースがカートに入っているかを返す。
func (u *User) HasInCart(courseID string) bool {
	return contains(u.Cart, courseID)
}

// HasPurchased はコースが購入済みかを返す。
func (u *User) HasPurchased(courseID string) bool {
	return contains(u.PurchasedCourses, courseID)
}

// AgeAt は today 時点の年齢を返す。生年月日が解釈できなければ false。
func (u *User) AgeAt(today time.Time) (int, bool) {
	age, err := AgeOf(u.BirthDate, today)
	if err != nil {
		return 0, false
	}
	return age, true
}

// IsAdmin は管理者かどうかを返す。
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// UnionStrings は base に items のうち未登録のものを順に追加した新しいスライスと、
// 実際に追加された要素を返す。base は変更しない。
func UnionStrings(base []string, items ...string) (merged []string, added []string) {
	merged = make([]string, 0, len(base)+len(items))
	merged = append(merged, base...)
	for _, it := range items {
		if contains(merged, it) {
			continue
		}
		merged = append(merged, it)
		added = append(added, it)
	}
	return merged, added
}

// RemoveString は s から v を除いた新しいスライスを返す。
func RemoveString(s []string, v string) []string {
	out := make([]string, 0, len(s))
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

func contains(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
