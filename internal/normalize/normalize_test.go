package normalize

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DealScanner/internal/domain"
	"DealScanner/internal/feed"
)

func parseItems(t *testing.T, doc string) []*feed.Node {
	t.Helper()
	root, err := feed.Parse(feed.Sanitize([]byte(doc)))
	require.NoError(t, err)
	return feed.ExtractItems(root)
}

func TestNormalizeHeadphonesScenario(t *testing.T) {
	t.Parallel()

	items := parseItems(t, `<rss><channel><item>
		<title>50% Off Headphones</title>
		<link>https://x.com/d1</link>
		<description>Amazon [amazon.com] has headphones w/ code SAVE50</description>
		<guid>abc123</guid>
	</item></channel></rss>`)
	require.Len(t, items, 1)

	deal, err := New().Normalize(items[0], "slickdeals")
	require.NoError(t, err)

	assert.Equal(t, "50% Off Headphones", deal.Title)
	assert.Equal(t, "https://x.com/d1", deal.URL)
	assert.Equal(t, "Amazon", deal.Merchant)
	assert.Equal(t, "SAVE50", deal.CouponCode)
	assert.Equal(t, "abc123", deal.ExternalID)
	assert.Equal(t, "slickdeals", deal.Source)
	assert.Equal(t, "Amazon has headphones w/ code SAVE50", deal.Description)
}

func TestNormalizeMissingFields(t *testing.T) {
	t.Parallel()

	items := parseItems(t, `<rss><channel>
		<item><link>https://x.com/1</link></item>
		<item><title>No link</title></item>
	</channel></rss>`)
	require.Len(t, items, 2)

	n := New()
	for i, field := range []string{"title", "url"} {
		_, err := n.Normalize(items[i], "src")
		require.Error(t, err)

		var nerr *domain.NormalizationError
		require.True(t, errors.As(err, &nerr))
		assert.Equal(t, field, nerr.Field)
	}
}

func TestNormalizeAtomEntry(t *testing.T) {
	t.Parallel()

	items := parseItems(t, `<feed xmlns="http://www.w3.org/2005/Atom" xmlns:media="http://search.yahoo.com/mrss/">
		<entry>
			<title type="html">Laptop &amp;amp; Bag $499.99</title>
			<link rel="self" href="https://feed.example/self"/>
			<link rel="alternate" href="https://shop.example/laptop"/>
			<id>https://shop.example/laptop</id>
			<category term="Computers"/>
			<updated>2025-11-08T10:00:00Z</updated>
			<media:thumbnail url="https://img.example/laptop.jpg"/>
			<summary type="html">&lt;p&gt;Great laptop&lt;/p&gt;</summary>
		</entry>
	</feed>`)
	require.Len(t, items, 1)

	deal, err := New().Normalize(items[0], "atom")
	require.NoError(t, err)

	assert.Equal(t, "Laptop & Bag $499.99", deal.Title)
	assert.Equal(t, "https://shop.example/laptop", deal.URL)
	assert.Empty(t, deal.ExternalID, "id equal to url carries no dedup value")
	assert.Equal(t, "Computers", deal.Category)
	assert.Equal(t, "https://img.example/laptop.jpg", deal.ImageURL)
	assert.Equal(t, "Great laptop", deal.Description)
	require.NotNil(t, deal.Price)
	assert.InDelta(t, 499.99, *deal.Price, 0.001)
	require.NotNil(t, deal.PublishedAt)
	assert.Equal(t, 2025, deal.PublishedAt.Year())
}

func TestNormalizeURLFallbacks(t *testing.T) {
	t.Parallel()

	items := parseItems(t, `<rss><channel>
		<item><title>guid url</title><guid isPermaLink="true">https://x.com/from-guid</guid></item>
		<item><title>enclosure</title><guid>opaque-1</guid><enclosure url="https://x.com/file.mp3" type="audio/mpeg"/></item>
	</channel></rss>`)
	require.Len(t, items, 2)

	n := New()

	first, err := n.Normalize(items[0], "s")
	require.NoError(t, err)
	assert.Equal(t, "https://x.com/from-guid", first.URL)
	assert.Empty(t, first.ExternalID)

	second, err := n.Normalize(items[1], "s")
	require.NoError(t, err)
	assert.Equal(t, "https://x.com/file.mp3", second.URL)
	assert.Equal(t, "opaque-1", second.ExternalID)
}

func TestNormalizeImagePreference(t *testing.T) {
	t.Parallel()

	items := parseItems(t, `<rss xmlns:media="http://search.yahoo.com/mrss/"><channel>
		<item><title>a</title><link>https://x.com/a</link>
			<enclosure url="https://img.example/enc.png" type="image/png"/>
			<media:content url="https://img.example/media.jpg" medium="image"/>
		</item>
		<item><title>b</title><link>https://x.com/b</link>
			<media:content url="https://img.example/video.mp4" medium="video"/>
			<media:content url="https://img.example/media.jpg" medium="image"/>
		</item>
		<item><title>c</title><link>https://x.com/c</link>
			<description><![CDATA[<p>Look <img src="https://img.example/inline.gif"> here</p>]]></description>
		</item>
	</channel></rss>`)
	require.Len(t, items, 3)

	n := New()
	want := []string{
		"https://img.example/enc.png",
		"https://img.example/media.jpg",
		"https://img.example/inline.gif",
	}
	for i, item := range items {
		deal, err := n.Normalize(item, "s")
		require.NoError(t, err)
		assert.Equal(t, want[i], deal.ImageURL)
	}
}

func TestCleanDescriptionStripsForumMarkup(t *testing.T) {
	t.Parallel()

	raw := "[B]Huge[/B] [i]sale[/i] at [url=https://x.com]the store[/url] [amazon.com] [*]free &amp; fast shipping [url]x[/url]"
	got := CleanDescription(raw)

	for _, token := range []string{"[B]", "[/B]", "[i]", "[url", "[/url]", "[amazon.com]", "[*]"} {
		assert.NotContains(t, got, token)
	}
	assert.Equal(t, "Huge sale at the store free & fast shipping x", got)
}

func TestExtractMerchantRules(t *testing.T) {
	t.Parallel()

	cases := []struct {
		title, description, want string
	}{
		{"Deal", "TV [walmart.com] code: SAVE20", "Walmart"},
		{"Deal", "Mouse [www.newegg.com]", "Newegg"},
		{"Deal", "Widget [gizmoshop.com]", "Gizmoshop"},
		{"Socks via Sock Barn", "", "Sock Barn"},
		{"Desk", "Available at Checkout today from Office Planet", "Office Planet"},
		{"Cheap GPU", "now in stock at best prices, Best Buy has it", "Best Buy"},
		{"Nothing", "no merchant here", ""},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, ExtractMerchant(tc.title, tc.description), tc.description)
	}
}

func TestExtractCouponPatterns(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"Save more with code save10 today":                        "SAVE10",
		"use promo code SPRING-24":                                "SPRING-24",
		"Enter code: deal5 at checkout":                           "DEAL5",
		"Coupon Code: WINTER":                                     "WINTER",
		"headphones w/ code SAVE50":                               "SAVE50",
		"no code mentioned, with code at x":                       "",
		"Save 20% with code for new members":                      "",
		"with code for students, or use code STUDENT at checkout": "STUDENT",
		"Use code FOR members only":                               "",
	}
	for text, want := range cases {
		assert.Equal(t, want, ExtractCoupon(text), text)
	}
}

func TestExtractionIsDeterministicUnderConcurrency(t *testing.T) {
	t.Parallel()

	items := parseItems(t, `<rss><channel><item>
		<title>TV deal</title><link>https://x.com/tv</link>
		<description>Big TV [walmart.com] code: SAVE20</description>
	</item></channel></rss>`)
	require.Len(t, items, 1)

	n := New()
	var wg sync.WaitGroup
	results := make([]domain.NormalizedDeal, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			deal, err := n.Normalize(items[0], "s")
			if err == nil {
				results[i] = deal
			}
		}(i)
	}
	wg.Wait()

	for _, deal := range results {
		assert.Equal(t, "Walmart", deal.Merchant)
		assert.Equal(t, "SAVE20", deal.CouponCode)
	}
}

func TestNormalizeJSONItem(t *testing.T) {
	t.Parallel()

	item := feed.FromJSON("item", map[string]any{
		"title":     "Blender",
		"url":       "https://shop.example/blender",
		"price":     "$39.00",
		"image_url": "https://img.example/blender.jpg",
		"expires":   "2026-01-31",
		"id":        "sku-77",
	})

	deal, err := New().Normalize(item, "api-shop")
	require.NoError(t, err)

	assert.Equal(t, "https://shop.example/blender", deal.URL)
	assert.Equal(t, "https://img.example/blender.jpg", deal.ImageURL)
	assert.Equal(t, "sku-77", deal.ExternalID)
	require.NotNil(t, deal.Price)
	assert.InDelta(t, 39.0, *deal.Price, 0.001)
	require.NotNil(t, deal.ExpiresAt)
	assert.Equal(t, 31, deal.ExpiresAt.Day())
}
