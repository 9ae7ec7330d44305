package extract

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"feedsentry/internal/search"
)

// locationGlyph is the icon placeholder the markup prefixes locations with.
const locationGlyph = "2"

var (
	digitsRe     = regexp.MustCompile(`\d+`)
	vipLevelRe   = regexp.MustCompile(`vip_(\d+)\.png`)
	videoSrcRe   = regexp.MustCompile(`src:'(.*?)'`)
	zeroWidthRe  = regexp.MustCompile("[​]")
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// ParseCount parses an engagement counter out of its display text. Anything
// without digits ("--", "", "转发") parses as zero.
func ParseCount(s string) int {
	m := digitsRe.FindString(s)
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return n
}

// verificationTier classifies the avatar badge SVG identifier.
func verificationTier(svgID string) search.VerificationTier {
	switch svgID {
	case "woo_svg_vblue":
		return search.VerificationBlue
	case "woo_svg_vyellow":
		return search.VerificationYellow
	case "woo_svg_vorange":
		return search.VerificationOrange
	case "woo_svg_vgold":
		return search.VerificationGold
	default:
		return search.VerificationNone
	}
}

// membership classifies the paid-membership badge from its icon filename.
// The numeric suffix carries the level.
func membership(info *goquery.Selection) (search.MembershipTier, int) {
	container := info.Find("div.user_vip_icon_container")
	if container.Length() == 0 {
		return search.MembershipNone, 0
	}
	tier := search.MembershipNone
	var src string
	container.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		s := img.AttrOr("src", "")
		switch {
		case strings.Contains(s, "svvip_"):
			tier = search.MembershipSuper
			src = s
			return false
		case strings.Contains(s, "vip_"):
			tier = search.MembershipVIP
			src = s
		}
		return true
	})
	if tier == search.MembershipNone {
		return tier, 0
	}
	level := 0
	if m := vipLevelRe.FindStringSubmatch(src); m != nil {
		level, _ = strconv.Atoi(m[1])
	}
	return tier, level
}

// cleanText strips zero-width and icon placeholder characters and collapses
// runs of whitespace.
func cleanText(s string) string {
	s = zeroWidthRe.ReplaceAllString(s, "")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// trimBody removes the leading separator the card layout leaves in front of
// the body, and the fold marker appended to expanded long posts.
func trimBody(s string, long bool) string {
	s = strings.TrimPrefix(s, "：")
	s = strings.TrimSpace(s)
	if long {
		s = strings.TrimSuffix(s, "收起d")
		s = strings.TrimSuffix(s, "收起")
		s = strings.TrimSpace(s)
	}
	return s
}

// location returns the first anchor tagged with the location glyph, without
// the glyph itself.
func location(txt *goquery.Selection) string {
	var loc string
	txt.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		icon := a.Find("i.wbicon").First()
		if icon.Length() > 0 && icon.Text() == locationGlyph {
			text := []rune(strings.TrimSpace(a.Text()))
			if len(text) > 1 {
				loc = string(text[1:])
			}
			return false
		}
		return true
	})
	return loc
}

// mentions collects @-links whose decoded target path suffix matches their
// own label, deduplicated in order of first appearance.
func mentions(txt *goquery.Selection) []string {
	var out []string
	seen := make(map[string]struct{})
	txt.Find("a").Each(func(_ int, a *goquery.Selection) {
		label := strings.TrimSpace(a.Text())
		if !strings.HasPrefix(label, "@") || len(label) < 2 {
			return
		}
		href, err := url.PathUnescape(a.AttrOr("href", ""))
		if err != nil {
			return
		}
		name := label[1:]
		if !strings.HasSuffix(href, "/n/"+name) {
			return
		}
		if _, dup := seen[name]; dup {
			return
		}
		seen[name] = struct{}{}
		out = append(out, name)
	})
	return out
}

// topics collects link labels delimited by a leading and trailing '#',
// deduplicated in order of first appearance.
func topics(txt *goquery.Selection) []string {
	var out []string
	seen := make(map[string]struct{})
	txt.Find("a").Each(func(_ int, a *goquery.Selection) {
		label := strings.TrimSpace(a.Text())
		runes := []rune(label)
		if len(runes) <= 2 || runes[0] != '#' || runes[len(runes)-1] != '#' {
			return
		}
		topic := string(runes[1 : len(runes)-1])
		if _, dup := seen[topic]; dup {
			return
		}
		seen[topic] = struct{}{}
		out = append(out, topic)
	})
	return out
}

// articleURL extracts the headline-article link from posts that announce
// one. The link anchor carries the "O" icon and a t.cn short URL.
func articleURL(txt *goquery.Selection, cleaned string) string {
	compact := strings.ReplaceAll(cleaned, " ", "")
	if !strings.HasPrefix(strings.TrimPrefix(compact, "："), "发布了头条文章") {
		return ""
	}
	var article string
	txt.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if a.Find("i.wbicon").First().Text() != "O" {
			return true
		}
		if href := a.AttrOr("href", ""); strings.HasPrefix(href, "http://t.cn") {
			article = href
		}
		return false
	})
	return article
}

// imageURLs collects attached image links, excluding animated formats, and
// rewrites the thumbnail path segment to the full-resolution one.
func imageURLs(card *goquery.Selection) []string {
	var out []string
	card.Find("div.media.media-piclist ul li img").Each(func(_ int, img *goquery.Selection) {
		src := img.AttrOr("src", "")
		if src == "" || strings.HasSuffix(strings.ToLower(src), ".gif") {
			return
		}
		if full := fullResolutionURL(src); full != "" {
			out = append(out, full)
		}
	})
	return out
}

// fullResolutionURL rewrites //host/<thumb-segment>/name to
// https://host/large/name.
func fullResolutionURL(src string) string {
	src = strings.TrimPrefix(src, "https:")
	src = strings.TrimPrefix(src, "http:")
	src = strings.TrimPrefix(src, "//")
	parts := strings.SplitN(src, "/", 3)
	if len(parts) < 3 {
		return ""
	}
	return "https://" + parts[0] + "/large/" + parts[2]
}

// videoURL pulls the stream URL out of the inline video-player fragment.
func videoURL(card *goquery.Selection) string {
	player := card.Find("div.thumbnail video-player")
	if player.Length() == 0 {
		return ""
	}
	html, err := goquery.OuterHtml(player.First())
	if err != nil {
		return ""
	}
	m := videoSrcRe.FindStringSubmatch(html)
	if m == nil {
		return ""
	}
	src := strings.ReplaceAll(m[1], "&amp;", "&")
	if strings.HasPrefix(src, "//") {
		src = "http:" + src
	}
	return src
}
