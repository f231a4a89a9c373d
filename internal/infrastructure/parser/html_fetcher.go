package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"DealScanner/internal/domain"
	"DealScanner/internal/feed"
	"DealScanner/internal/fetcher"
)

const (
	defaultOffsetParam = "skip"
	defaultLimitParam  = "show"
	maxHTMLPages       = 50
)

// HTMLFetcher scrapes a deal listing page with CSS selectors taken from the source options:
//
//	item         selector of one deal row (required)
//	title        title element inside the row (default: the first link)
//	link         anchor inside the row whose href is the deal url (default: the first a[href])
//	description, price, image, id, category, expires   optional selectors
//	pageSize     rows per page; when set, pages are requested with offset/limit query params
//	maxPages     upper bound on requested pages (default 1)
//	offsetParam, limitParam   query param names (default skip, show)
//
// Each row becomes an "item" node with the same child names a feed item carries.
type HTMLFetcher struct {
	client Getter
}

var _ fetcher.Fetcher = (*HTMLFetcher)(nil)

// NewHTMLFetcher wires the HTTP getter.
func NewHTMLFetcher(client Getter) *HTMLFetcher {
	return &HTMLFetcher{client: client}
}

// Name is the fetcher reference API sources use to select it.
func (f *HTMLFetcher) Name() string {
	return "html"
}

type listingLayout struct {
	item, title, link, description, price, image, id, category, expires string

	pageSize, maxPages      int
	offsetParam, limitParam string
}

// Fetch walks the listing pages and returns one node per distinct deal row.
func (f *HTMLFetcher) Fetch(ctx context.Context, req fetcher.Request) ([]*feed.Node, error) {
	base := req.Config.FeedURL
	if base == "" {
		base = req.Config.Options["endpoint"]
	}
	if base == "" {
		return nil, &domain.FetchError{Source: req.SourceKey, Err: errors.New("listing url is not configured")}
	}

	layout, err := layoutFrom(req.Config.Options)
	if err != nil {
		return nil, &domain.FetchError{Source: req.SourceKey, Err: err}
	}

	var (
		results []*feed.Node
		seen    = map[string]struct{}{}
		skip    int
	)

	for page := 0; page < layout.maxPages; page++ {
		pageURL := base
		if layout.pageSize > 0 {
			pageURL, err = buildPageURL(base, layout, skip)
			if err != nil {
				return nil, &domain.FetchError{Source: req.SourceKey, Err: err}
			}
		}

		doc, err := f.fetchDocument(ctx, pageURL, req.Config.Headers)
		if err != nil {
			return nil, &domain.FetchError{Source: req.SourceKey, Err: err}
		}

		rows := doc.Find(layout.item)
		rows.Each(func(_ int, row *goquery.Selection) {
			item := parseRow(row, layout, doc.Url)
			key := item.ChildText("link")
			if key == "" {
				key = item.ChildText("title")
			}
			if key == "" {
				return
			}
			if _, ok := seen[key]; ok {
				return
			}
			seen[key] = struct{}{}
			results = append(results, item)
		})

		if layout.pageSize == 0 || rows.Length() < layout.pageSize {
			break
		}
		skip += layout.pageSize
	}

	return results, nil
}

func (f *HTMLFetcher) fetchDocument(ctx context.Context, pageURL string, headers map[string]string) (*goquery.Document, error) {
	body, err := f.client.Get(ctx, pageURL, headers)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	if u, err := url.Parse(pageURL); err == nil {
		doc.Url = u
	}
	return doc, nil
}

func layoutFrom(opts map[string]string) (listingLayout, error) {
	l := listingLayout{
		item:        strings.TrimSpace(opts["item"]),
		title:       opts["title"],
		link:        opts["link"],
		description: opts["description"],
		price:       opts["price"],
		image:       opts["image"],
		id:          opts["id"],
		category:    opts["category"],
		expires:     opts["expires"],
		maxPages:    1,
		offsetParam: defaultOffsetParam,
		limitParam:  defaultLimitParam,
	}
	if l.item == "" {
		return listingLayout{}, errors.New("html listing needs an item selector")
	}
	if l.link == "" {
		l.link = "a[href]"
	}
	if v := opts["offsetParam"]; v != "" {
		l.offsetParam = v
	}
	if v := opts["limitParam"]; v != "" {
		l.limitParam = v
	}

	var err error
	if l.pageSize, err = intOption(opts, "pageSize"); err != nil {
		return listingLayout{}, err
	}
	if v, err := intOption(opts, "maxPages"); err != nil {
		return listingLayout{}, err
	} else if v > 0 {
		l.maxPages = min(v, maxHTMLPages)
	}
	return l, nil
}

func intOption(opts map[string]string, name string) (int, error) {
	raw := strings.TrimSpace(opts[name])
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("option %s must be a non-negative integer, got %q", name, raw)
	}
	return n, nil
}

func parseRow(row *goquery.Selection, l listingLayout, base *url.URL) *feed.Node {
	item := &feed.Node{Name: "item"}
	add := func(name, text string) {
		if text = strings.TrimSpace(text); text != "" {
			item.Children = append(item.Children, &feed.Node{Name: name, Text: text})
		}
	}

	anchor := row.Find(l.link).First()
	if anchor.Length() == 0 && goquery.NodeName(row) == "a" {
		anchor = row
	}
	href, _ := anchor.Attr("href")

	title := anchor.Text()
	if l.title != "" {
		title = row.Find(l.title).First().Text()
	}

	add("title", title)
	add("link", absolute(base, href))
	if l.description != "" {
		if html, err := row.Find(l.description).First().Html(); err == nil {
			add("description", html)
		}
	}
	if l.price != "" {
		add("price", row.Find(l.price).First().Text())
	}
	if l.category != "" {
		add("category", row.Find(l.category).First().Text())
	}
	if l.expires != "" {
		add("expires", selectionValue(row.Find(l.expires).First(), "datetime"))
	}
	if l.id != "" {
		add("id", selectionValue(row.Find(l.id).First(), "data-id"))
	} else if id, ok := row.Attr("data-id"); ok {
		add("id", id)
	}
	if l.image != "" {
		img := row.Find(l.image).First()
		src, ok := img.Attr("src")
		if !ok {
			src, _ = img.Attr("data-src")
		}
		add("image", absolute(base, src))
	}

	return item
}

// selectionValue prefers the named attribute over the element text.
func selectionValue(s *goquery.Selection, attr string) string {
	if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return s.Text()
}

func absolute(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || base == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}

func buildPageURL(base string, l listingLayout, skip int) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid listing url %s: %w", base, err)
	}

	query := parsed.Query()
	query.Set(l.offsetParam, strconv.Itoa(skip))
	query.Set(l.limitParam, strconv.Itoa(l.pageSize))
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
