package utils

import (
	"regexp"
	"time"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// 时间格式化
func FormatTime(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

// DateKey 返回日期键，例如 2024-03-18
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// MonthKey 返回月份键，例如 2024-03
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}

// WeekStart returns midnight on the Monday of t's week.
func WeekStart(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	day := t.AddDate(0, 0, -offset)
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, t.Location())
}

// 验证邮箱格式
func ValidateEmail(email string) bool {
	if len(email) == 0 || len(email) > 254 {
		return false
	}
	return emailPattern.MatchString(email)
}
