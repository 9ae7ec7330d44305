package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

const timestampLayout = "2006-01-02 15:04"

var (
	relativeRe = regexp.MustCompile(`^(\d+)(秒|分钟|小时)前?$`)
	todayRe    = regexp.MustCompile(`^今天\s*(\d{1,2}):(\d{2})$`)
	monthDayRe = regexp.MustCompile(`^(?:(\d{4})年)?(\d{1,2})月(\d{1,2})日\s*(\d{1,2}):(\d{2})$`)
	absoluteRe = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})\s+(\d{1,2}):(\d{2})$`)
)

// NormalizeCreatedAt converts the endpoint's display timestamp (relative
// "N分钟前" forms, "今天 HH:MM", "MM月DD日 HH:MM", or an absolute date) to
// "YYYY-MM-DD HH:MM". Unrecognized input is returned cleaned but unchanged.
func NormalizeCreatedAt(raw string, now time.Time) string {
	s := strings.TrimSpace(whitespaceRe.ReplaceAllString(raw, " "))
	s = strings.TrimSuffix(s, "前")

	if s == "" {
		return ""
	}
	if s == "刚刚" {
		return now.Format(timestampLayout)
	}

	if m := relativeRe.FindStringSubmatch(s + "前"); m != nil {
		n, _ := strconv.Atoi(m[1])
		switch m[2] {
		case "秒":
			return now.Add(-time.Duration(n) * time.Second).Format(timestampLayout)
		case "分钟":
			return now.Add(-time.Duration(n) * time.Minute).Format(timestampLayout)
		case "小时":
			return now.Add(-time.Duration(n) * time.Hour).Format(timestampLayout)
		}
	}

	if m := todayRe.FindStringSubmatch(s); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		t := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
		return t.Format(timestampLayout)
	}

	if m := monthDayRe.FindStringSubmatch(s); m != nil {
		year := now.Year()
		if m[1] != "" {
			year, _ = strconv.Atoi(m[1])
		}
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		hour, _ := strconv.Atoi(m[4])
		minute, _ := strconv.Atoi(m[5])
		t := time.Date(year, time.Month(month), day, hour, minute, 0, 0, now.Location())
		return t.Format(timestampLayout)
	}

	if m := absoluteRe.FindStringSubmatch(s); m != nil {
		if t, err := time.ParseInLocation(timestampLayout, s, now.Location()); err == nil {
			return t.Format(timestampLayout)
		}
	}

	return s
}
