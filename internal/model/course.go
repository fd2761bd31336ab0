package model

import "strings"

// Level はコースの難易度を表す。定義外の値も自由入力として保持する。
type Level string

const (
	LevelBasic        Level = "Basic"
	LevelIntermediate Level = "Intermediate"
	LevelAdvanced     Level = "Advanced"
)

// ParseLevel は大文字小文字を無視して既知の難易度に正規化する。
func ParseLevel(s string) Level {
	s = strings.TrimSpace(s)
	for _, l := range []Level{LevelBasic, LevelIntermediate, LevelAdvanced} {
		if strings.EqualFold(s, string(l)) {
			return l
		}
	}
	return Level(s)
}

// Course は販売されるコースを表す。
// Nameは自然キーとして一意に扱う。
type Course struct {
	ID            string
	Name          string
	Description   string
	DurationHours int
	Price         float64
	Category      string
	Level         Level
	Instructor    string
	ImageURL      string
	EnrolledUsers []string // 受講者のメールアドレス（集合）
}

// IsEnrolled は受講者として登録済みかを返す。
func (c *Course) IsEnrolled(email string) bool {
	return contains(c.EnrolledUsers, email)
}
