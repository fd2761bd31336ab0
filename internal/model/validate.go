package model

import (
	"math"
	"regexp"
	"strings"
	"time"
)

// DateLayout は生年月日の保存形式（ISO 8601 日付）。
const DateLayout = "2006-01-02"

var (
	taxIDPattern = regexp.MustCompile(`^\d{3}\.\d{3}\.\d{3}-\d{2}$`)
	phonePattern = regexp.MustCompile(`^\d{5}-\d{4}$`)
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	nonDigit     = regexp.MustCompile(`\D`)
)

// ValidTaxID はCPFが正規形式 NNN.NNN.NNN-NN かを返す。
func ValidTaxID(s string) bool { return taxIDPattern.MatchString(s) }

// ValidPhone は電話番号が 99999-9999 形式かを返す。
func ValidPhone(s string) bool { return phonePattern.MatchString(s) }

// ValidEmail はメールアドレスの形式を検証する。
func ValidEmail(s string) bool { return emailPattern.MatchString(s) }

// FormatTaxID は数字以外を取り除き、11桁であれば NNN.NNN.NNN-NN 形式に整形する。
// 11桁でない場合は入力をトリムしたものを返す（検証で弾かれる）。
func FormatTaxID(raw string) string {
	digits := nonDigit.ReplaceAllString(raw, "")
	if len(digits) != 11 {
		return strings.TrimSpace(raw)
	}
	return digits[0:3] + "." + digits[3:6] + "." + digits[6:9] + "-" + digits[9:11]
}

// ValidateUser はユーザーの入力値を検証する。
// 最初に見つかった違反で即座に *ValidationError を返す（集約しない）。
func ValidateUser(u *User) error {
	required := []struct {
		field string
		value string
	}{
		{"name", u.Name},
		{"taxId", u.TaxID},
		{"birthDate", u.BirthDate},
		{"email", u.Email},
		{"phone", u.Phone},
		{"role", string(u.Role)},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &ValidationError{Field: r.field, Reason: "required"}
		}
	}

	if !ValidTaxID(u.TaxID) {
		return &ValidationError{Field: "taxId", Reason: "must match NNN.NNN.NNN-NN"}
	}
	if !ValidPhone(u.Phone) {
		return &ValidationError{Field: "phone", Reason: "must match 99999-9999"}
	}
	if !ValidEmail(u.Email) {
		return &ValidationError{Field: "email", Reason: "invalid email address"}
	}
	if _, err := time.Parse(DateLayout, u.BirthDate); err != nil {
		return &ValidationError{Field: "birthDate", Reason: "must be an ISO date (YYYY-MM-DD)"}
	}
	return nil
}

// ValidateCourse はコースの入力値を検証する。
func ValidateCourse(c *Course) error {
	if strings.TrimSpace(c.Name) == "" {
		return &ValidationError{Field: "name", Reason: "required"}
	}
	if math.IsNaN(c.Price) || math.IsInf(c.Price, 0) {
		return &ValidationError{Field: "price", Reason: "must be a finite number"}
	}
	if c.Price < 0 {
		return &ValidationError{Field: "price", Reason: "must not be negative"}
	}
	if c.DurationHours < 0 {
		return &ValidationError{Field: "durationHours", Reason: "must not be negative"}
	}
	return nil
}

// Age は today 時点の満年齢を返す。
// 今年の誕生日（月日）をまだ迎えていなければ1を引く。
func Age(birth, today time.Time) int {
	age := today.Year() - birth.Year()
	if today.Month() < birth.Month() ||
		(today.Month() == birth.Month() && today.Day() < birth.Day()) {
		age--
	}
	return age
}

// AgeOf は生年月日文字列から today 時点の年齢を計算する。
func AgeOf(birthDate string, today time.Time) (int, error) {
	birth, err := time.Parse(DateLayout, birthDate)
	if err != nil {
		return 0, &ValidationError{Field: "birthDate", Reason: "must be an ISO date (YYYY-MM-DD)"}
	}
	return Age(birth, today), nil
}
