package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNormalizeCreatedAt(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 15, 18, 30, 0, 0, time.Local)

	cases := []struct {
		in   string
		want string
	}{
		{"刚刚", "2026-03-15 18:30"},
		{"30秒前", "2026-03-15 18:29"},
		{"5分钟前", "2026-03-15 18:25"},
		{"2小时前", "2026-03-15 16:30"},
		{"今天 09:05", "2026-03-15 09:05"},
		{"今天09:05", "2026-03-15 09:05"},
		{"03月14日 22:10", "2026-03-14 22:10"},
		{"2025年12月31日 23:59", "2025-12-31 23:59"},
		{"2026-03-01 08:00", "2026-03-01 08:00"},
		{"", ""},
		{"某种未知格式", "某种未知格式"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, NormalizeCreatedAt(tc.in, now), "input %q", tc.in)
	}
}
