package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

const blockElements = "br,p,div,li,tr,td,h1,h2,h3,h4,h5,h6,blockquote"

// htmlToText strips tags and decodes entities.
func htmlToText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	doc.Find(blockElements).AfterHtml(" ")
	return doc.Text()
}

// firstImage returns the src of the first <img> in an HTML fragment.
func firstImage(s string) string {
	if !strings.Contains(strings.ToLower(s), "<img") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return ""
	}
	src, _ := doc.Find("img[src]").First().Attr("src")
	return strings.TrimSpace(src)
}

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceExpr.ReplaceAllString(s, " "))
}

// stripMarkup removes forum markup tokens and bracketed domain references.
func stripMarkup(s string) string {
	for _, expr := range markupPatterns {
		s = expr.ReplaceAllString(s, " ")
	}
	return s
}

// CleanDescription turns a feed description (HTML and forum markup) into readable text.
func CleanDescription(raw string) string {
	return collapseWhitespace(stripMarkup(htmlToText(raw)))
}

// ExtractMerchant applies the merchant rules over already tag-free text. Empty when nothing matched.
func ExtractMerchant(title, description string) string {
	refs := domainRefExpr.FindAllStringSubmatch(description, -1)
	for _, rule := range compiledDomains {
		for _, ref := range refs {
			if rule.expr.MatchString(strings.ToLower(ref[1])) {
				return rule.name
			}
		}
	}

	if m := genericRefExpr.FindStringSubmatch(description); m != nil {
		return capitalize(m[1])
	}

	for _, text := range []string{title, description} {
		for _, m := range phraseExpr.FindAllStringSubmatch(text, -1) {
			name := strings.TrimSpace(m[1])
			if _, stop := merchantStopwords[strings.Fields(name)[0]]; stop {
				continue
			}
			return name
		}
	}

	combined := title + " " + description
	for _, kw := range compiledKeywords {
		if kw.expr.MatchString(combined) {
			return kw.name
		}
	}

	return ""
}

// ExtractCoupon returns the first coupon code in the text, upper-cased.
func ExtractCoupon(text string) string {
	for _, expr := range couponPatterns {
		for _, m := range expr.FindAllStringSubmatch(text, -1) {
			if looksLikeCode(m[1]) {
				return strings.ToUpper(m[1])
			}
		}
	}
	return ""
}

// looksLikeCode accepts tokens with a digit, or written entirely in upper case and not a stopword.
func looksLikeCode(token string) bool {
	if strings.ContainsAny(token, "0123456789") {
		return true
	}
	if token != strings.ToUpper(token) {
		return false
	}
	_, stop := couponStopwords[token]
	return !stop
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

type namedExpr struct {
	expr *regexp.Regexp
	name string
}

var (
	compiledDomains  = compileDomains(merchantDomains)
	compiledKeywords = compileKeywords(merchantKeywords)
)

func compileDomains(rules []merchantDomain) []namedExpr {
	out := make([]namedExpr, 0, len(rules))
	for _, r := range rules {
		out = append(out, namedExpr{
			expr: regexp.MustCompile(`^(?:www\.|smile\.)?` + r.Pattern + `$`),
			name: r.Name,
		})
	}
	return out
}

func compileKeywords(names []string) []namedExpr {
	out := make([]namedExpr, 0, len(names))
	for _, name := range names {
		out = append(out, namedExpr{
			expr: regexp.MustCompile(`(?:^|[^\pL\pN])` + regexp.QuoteMeta(name) + `(?:$|[^\pL\pN])`),
			name: name,
		})
	}
	return out
}
