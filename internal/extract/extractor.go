// Package extract converts search-result documents into normalized records
// plus the pagination signals the partitioner steers by.
package extract

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"feedsentry/internal/search"
)

// Extractor parses card markup out of one document. Extraction is a pure
// function of the document; the geo lookup is the partitioner's concern.
type Extractor struct {
	logger *zap.Logger
	now    func() time.Time
}

// New constructs an Extractor.
func New(logger *zap.Logger) *Extractor {
	return &Extractor{
		logger: logger,
		now:    time.Now,
	}
}

// ExtractPage yields the records on one page plus result-size and next-page
// signals. Individual cards that fail to parse are skipped, never fatal.
func (e *Extractor) ExtractPage(doc search.Document, q search.Query) (search.PageData, error) {
	root, err := goquery.NewDocumentFromReader(bytes.NewReader(doc.Body))
	if err != nil {
		return search.PageData{}, fmt.Errorf("parse document: %w", err)
	}

	data := search.PageData{
		ResultPages: root.Find("ul.s-scroll li").Length(),
		HasNext:     root.Find("a.next").Length() > 0,
	}

	root.Find("div.card-wrap[mid]").Each(func(_ int, card *goquery.Selection) {
		rec, ok := e.parseCard(card, q)
		if !ok {
			return
		}
		data.Records = append(data.Records, rec)
	})
	return data, nil
}

// parseCard extracts one record from a card block. Cards with no info block
// (ads, separators) are rejected.
func (e *Extractor) parseCard(card *goquery.Selection, q search.Query) (search.Record, bool) {
	id := card.AttrOr("mid", "")
	info := card.Find("div.info")
	if id == "" || info.Length() == 0 {
		return search.Record{}, false
	}

	rec := search.Record{
		ID:           id,
		Keyword:      q.Keyword,
		Verification: verificationTier(card.Find("div.avator svg").First().AttrOr("id", "")),
	}
	rec.SecondaryID = secondaryID(card)
	rec.AuthorID, rec.AuthorName = authorInfo(info)
	rec.Membership, rec.MembershipLevel = membership(info)

	txt, retweetTxt, longOuter, longRetweet := e.selectText(card)

	rec.Text = cleanText(txt.Text())
	rec.ArticleURL = articleURL(txt, rec.Text)
	rec.Location = location(txt)
	if rec.Location != "" {
		rec.Text = strings.Replace(rec.Text, locationGlyph+rec.Location, "", 1)
	}
	rec.Text = trimBody(rec.Text, longOuter)
	rec.Mentions = mentions(txt)
	rec.Topics = topics(txt)

	rec.Counters = search.Counters{
		Reposts:  ParseCount(card.Find(`a[action-type="feed_list_forward"]`).Text()),
		Comments: ParseCount(card.Find(`a[action-type="feed_list_comment"]`).Text()),
		Likes:    ParseCount(likeText(card)),
	}

	rec.CreatedAt = NormalizeCreatedAt(card.Find("div.from a").First().Text(), e.now())
	rec.Source = strings.TrimSpace(card.Find("div.from a").Eq(1).Text())

	// A quoted sub-post keeps its own text; its media is not attributed to
	// the outer record, and there is no stable quoted-post ID to resolve.
	if retweetTxt != nil {
		rec.RetweetText = trimBody(cleanText(retweetTxt.Text()), longRetweet)
		rec.RetweetID = ""
	} else {
		rec.ImageURLs = imageURLs(card)
		rec.VideoURL = videoURL(card)
	}

	return rec, true
}

// selectText picks the outer and quoted text fragments, preferring the
// expanded variant of truncated posts.
func (e *Extractor) selectText(card *goquery.Selection) (txt, retweetTxt *goquery.Selection, longOuter, longRetweet bool) {
	txt = card.Find("p.txt").First()
	retweetBlock := card.Find("div.card-comment")
	if retweetBlock.Length() > 0 {
		if inner := retweetBlock.First().Find("p.txt"); inner.Length() > 0 {
			retweetTxt = inner.First()
		}
	}

	full := card.Find(`p[node-type="feed_list_content_full"]`)
	switch {
	case full.Length() == 0:
	case retweetBlock.Length() == 0:
		txt = full.First()
		longOuter = true
	case full.Length() == 2:
		txt = full.Eq(0)
		retweetTxt = full.Eq(1)
		longOuter = true
		longRetweet = true
	case retweetBlock.Find(`p[node-type="feed_list_content_full"]`).Length() > 0:
		retweetTxt = retweetBlock.Find(`p[node-type="feed_list_content_full"]`).First()
		longRetweet = true
	default:
		txt = full.First()
		longOuter = true
	}
	return txt, retweetTxt, longOuter, longRetweet
}

func secondaryID(card *goquery.Selection) string {
	href := card.Find("div.from a").First().AttrOr("href", "")
	if href == "" {
		return ""
	}
	parts := strings.Split(href, "/")
	last := parts[len(parts)-1]
	if i := strings.Index(last, "?"); i >= 0 {
		last = last[:i]
	}
	return last
}

func authorInfo(info *goquery.Selection) (id, name string) {
	link := info.Find("a[nick-name]").First()
	name = link.AttrOr("nick-name", "")
	href := link.AttrOr("href", "")
	if i := strings.Index(href, "?"); i >= 0 {
		href = href[:i]
	}
	if parts := strings.Split(href, "/"); len(parts) > 0 {
		id = parts[len(parts)-1]
	}
	return id, name
}

func likeText(card *goquery.Selection) string {
	like := card.Find(`a[action-type="feed_list_like"]`)
	if span := like.Find("span").Last(); span.Length() > 0 {
		return span.Text()
	}
	return like.Text()
}
