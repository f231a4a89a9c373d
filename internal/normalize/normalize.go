package normalize

import (
	"errors"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"DealScanner/internal/domain"
	"DealScanner/internal/feed"
)

var (
	descriptionFields = []string{"description", "content:encoded", "summary", "content", "body"}
	categoryFields    = []string{"category", "dc:subject", "categories"}
	publishedFields   = []string{"pubDate", "published", "dc:date", "updated", "date", "published_at", "publishedAt"}
	expiryFields      = []string{"expires", "expiry", "expiration", "expires_at", "expiresAt"}
	idFields          = []string{"guid", "id", "external_id"}
	imageFields       = []string{"image", "image_url", "imageUrl", "thumbnail"}
)

var dateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	time.RFC3339Nano,
	time.RFC822Z,
	time.RFC822,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2 Jan 2006 15:04:05 -0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Normalizer reduces raw feed items to NormalizedDeal values. Safe for concurrent use.
type Normalizer struct {
	validate *validator.Validate
}

// New builds a Normalizer.
func New() *Normalizer {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return &Normalizer{validate: v}
}

// Normalize converts one raw item. A missing title or url yields a *domain.NormalizationError.
func (n *Normalizer) Normalize(item *feed.Node, sourceKey string) (domain.NormalizedDeal, error) {
	if item == nil {
		return domain.NormalizedDeal{}, &domain.NormalizationError{Source: sourceKey, Reason: "empty item"}
	}

	rawDescription := item.ChildText(descriptionFields...)
	plainDescription := htmlToText(rawDescription)
	title := collapseWhitespace(stripMarkup(htmlToText(item.ChildText("title", "name"))))
	link := resolveURL(item)

	deal := domain.NormalizedDeal{
		Title:       title,
		URL:         link,
		Description: collapseWhitespace(stripMarkup(plainDescription)),
		ImageURL:    resolveImage(item, rawDescription),
		Merchant:    ExtractMerchant(title, plainDescription),
		Category:    collapseWhitespace(item.ChildText(categoryFields...)),
		PublishedAt: parseDate(item.ChildText(publishedFields...)),
		Source:      sourceKey,
		CouponCode:  ExtractCoupon(title + " " + plainDescription),
		Price:       resolvePrice(item, title),
		ExpiresAt:   parseDate(item.ChildText(expiryFields...)),
	}

	if id := item.ChildText(idFields...); id != "" && id != link {
		deal.ExternalID = id
	}

	if err := n.validate.Struct(deal); err != nil {
		return domain.NormalizedDeal{}, toNormalizationError(sourceKey, err)
	}

	return deal, nil
}

func toNormalizationError(source string, err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &domain.NormalizationError{Source: source, Reason: err.Error()}
	}

	fe := fieldErrs[0]
	reason := "is invalid"
	switch fe.Tag() {
	case "required":
		reason = "is required"
	case "url":
		reason = "is not a valid url"
	}
	return &domain.NormalizationError{Source: source, Field: fe.Field(), Reason: reason}
}

// resolveURL prefers the link text, then an Atom alternate href, then an absolute guid, then the enclosure.
func resolveURL(item *feed.Node) string {
	for _, l := range item.ChildrenNamed("link") {
		if text := strings.TrimSpace(l.Text); text != "" {
			return text
		}
	}
	if u := item.ChildText("url"); u != "" {
		return u
	}

	var fallback string
	for _, l := range item.ChildrenNamed("link") {
		href := l.Attr("href")
		if href == "" {
			continue
		}
		switch l.Attr("rel") {
		case "", "alternate":
			return href
		case "self", "enclosure", "replies", "edit":
		default:
			if fallback == "" {
				fallback = href
			}
		}
	}
	if fallback != "" {
		return fallback
	}

	if guid := item.ChildText("guid", "id"); isAbsoluteURL(guid) {
		return guid
	}

	return item.Child("enclosure").Attr("url")
}

// resolveImage prefers an image enclosure, then media content/thumbnail, then an image field,
// then the first <img> in the description HTML.
func resolveImage(item *feed.Node, rawDescription string) string {
	for _, enc := range item.ChildrenNamed("enclosure") {
		if strings.HasPrefix(strings.ToLower(enc.Attr("type")), "image/") && isAbsoluteURL(enc.Attr("url")) {
			return enc.Attr("url")
		}
	}

	for _, scope := range []*feed.Node{item, item.Child("media:group")} {
		for _, mc := range scope.ChildrenNamed("media:content") {
			medium, typ := mc.Attr("medium"), strings.ToLower(mc.Attr("type"))
			if (medium == "" || medium == "image") && (typ == "" || strings.HasPrefix(typ, "image/")) && isAbsoluteURL(mc.Attr("url")) {
				return mc.Attr("url")
			}
		}
		if thumb := scope.Child("media:thumbnail").Attr("url"); isAbsoluteURL(thumb) {
			return thumb
		}
	}

	for _, name := range imageFields {
		img := item.Child(name)
		if img == nil {
			continue
		}
		for _, candidate := range []string{img.Attr("url"), img.Attr("href"), img.ChildText("url"), strings.TrimSpace(img.Text)} {
			if isAbsoluteURL(candidate) {
				return candidate
			}
		}
	}

	if src := firstImage(rawDescription); isAbsoluteURL(src) {
		return src
	}
	if img := item.Find("img"); isAbsoluteURL(img.Attr("src")) {
		return img.Attr("src")
	}

	return ""
}

func resolvePrice(item *feed.Node, title string) *float64 {
	if m := priceExpr.FindStringSubmatch(title); m != nil {
		if p, ok := parsePrice(m[1]); ok {
			return &p
		}
	}
	if p, ok := parsePrice(item.ChildText("price")); ok {
		return &p
	}
	return nil
}

func parsePrice(s string) (float64, bool) {
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(strings.TrimSpace(s))
	if s == "" {
		return 0, false
	}
	p, err := strconv.ParseFloat(s, 64)
	if err != nil || p < 0 {
		return 0, false
	}
	return p, true
}

func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			utc := t.UTC()
			return &utc
		}
	}
	return nil
}

func isAbsoluteURL(s string) bool {
	if s == "" {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
