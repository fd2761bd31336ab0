package model

import (
	"encoding/json"
	"fmt"
	"math"
)

// ストア上のフィールド名
const (
	FieldName             = "name"
	FieldTaxID            = "taxId"
	FieldBirthDate        = "birthDate"
	FieldEmail            = "email"
	FieldPhone            = "phone"
	FieldRole             = "role"
	FieldCart             = "cart"
	FieldPurchasedCourses = "purchasedCourses"

	FieldDescription   = "description"
	FieldDurationHours = "durationHours"
	FieldPrice         = "price"
	FieldCategory      = "category"
	FieldLevel         = "level"
	FieldInstructor    = "instructor"
	FieldImageURL      = "imageUrl"
	FieldEnrolledUsers = "enrolledUsers"
)

// UserToDocument はUserをストア用のペイロードに変換する。
// ストアは集合型を持たないため、配列フィールドは必ず配列（空でも非nil）で出力する。
// IDはドキュメントキーとして扱い、ペイロードには含めない。
func UserToDocument(u *User) map[string]any {
	return map[string]any{
		FieldName:             u.Name,
		FieldTaxID:            u.TaxID,
		FieldBirthDate:        u.BirthDate,
		FieldEmail:            u.Email,
		FieldPhone:            u.Phone,
		FieldRole:             string(u.Role),
		FieldCart:             nonNil(u.Cart),
		FieldPurchasedCourses: nonNil(u.PurchasedCourses),
	}
}

// UserFromDocument はストアのペイロードをUserに復元する。
// 型が合わないフィールドがあれば *SchemaError を返す。
// 配列フィールドは欠落・null・空配列のいずれも非nilの空スライスとして復元する。
func UserFromDocument(id string, data map[string]any) (*User, error) {
	d := decoder{collection: CollectionUsers, id: id, data: data}
	u := &User{
		ID:               id,
		Name:             d.str(FieldName),
		TaxID:            d.str(FieldTaxID),
		BirthDate:        d.str(FieldBirthDate),
		Email:            d.str(FieldEmail),
		Phone:            d.str(FieldPhone),
		Role:             Role(d.str(FieldRole)),
		Cart:             d.strs(FieldCart),
		PurchasedCourses: d.strs(FieldPurchasedCourses),
	}
	if d.err != nil {
		return nil, d.err
	}
	return u, nil
}

// CourseToDocument はCourseをストア用のペイロードに変換する。
func CourseToDocument(c *Course) map[string]any {
	return map[string]any{
		FieldName:          c.Name,
		FieldDescription:   c.Description,
		FieldDurationHours: c.DurationHours,
		FieldPrice:         c.Price,
		FieldCategory:      c.Category,
		FieldLevel:         string(c.Level),
		FieldInstructor:    c.Instructor,
		FieldImageURL:      c.ImageURL,
		FieldEnrolledUsers: nonNil(c.EnrolledUsers),
	}
}

// CourseFromDocument はストアのペイロードをCourseに復元する。
func CourseFromDocument(id string, data map[string]any) (*Course, error) {
	d := decoder{collection: CollectionCourses, id: id, data: data}
	c := &Course{
		ID:            id,
		Name:          d.str(FieldName),
		Description:   d.str(FieldDescription),
		DurationHours: d.int(FieldDurationHours),
		Price:         d.float(FieldPrice),
		Category:      d.str(FieldCategory),
		Level:         Level(d.str(FieldLevel)),
		Instructor:    d.str(FieldInstructor),
		ImageURL:      d.str(FieldImageURL),
		EnrolledUsers: d.strs(FieldEnrolledUsers),
	}
	if d.err != nil {
		return nil, d.err
	}
	return c, nil
}

// StringSlice はストアから読んだ値を文字列配列として解釈する。
// ストアによって []any / []string / nil のいずれかで返るため、すべて受け付ける。
func StringSlice(v any) ([]string, bool) {
	switch t := v.(type) {
	case nil:
		return nil, true
	case []string:
		if len(t) == 0 {
			return nil, true
		}
		out := make([]string, len(t))
		copy(out, t)
		return out, true
	case []any:
		if len(t) == 0 {
			return nil, true
		}
		out := make([]string, 0, len(t))
		for _, x := range t {
			s, ok := x.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

// decoder は最初の型エラーを保持しながらフィールドを読み出す。
type decoder struct {
	collection string
	id         string
	data       map[string]any
	err        error
}

func (d *decoder) fail(field, reason string) {
	if d.err == nil {
		d.err = &SchemaError{Collection: d.collection, ID: d.id, Field: field, Reason: reason}
	}
}

func (d *decoder) str(field string) string {
	v, ok := d.data[field]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		d.fail(field, fmt.Sprintf("expected string, got %T", v))
		return ""
	}
	return s
}

func (d *decoder) strs(field string) []string {
	s, ok := StringSlice(d.data[field])
	if !ok {
		d.fail(field, "expected an array of strings")
		return nil
	}
	return nonNil(s)
}

func (d *decoder) float(field string) float64 {
	v, ok := d.data[field]
	if !ok || v == nil {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			d.fail(field, "invalid number")
		}
		return f
	}
	d.fail(field, fmt.Sprintf("expected number, got %T", v))
	return 0
}

func (d *decoder) int(field string) int {
	v, ok := d.data[field]
	if !ok || v == nil {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		if n != math.Trunc(n) {
			d.fail(field, "expected integer")
			return 0
		}
		return int(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			d.fail(field, "expected integer")
		}
		return int(i)
	}
	d.fail(field, fmt.Sprintf("expected integer, got %T", v))
	return 0
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
