package normalize

import "regexp"

// merchantDomain maps a storefront domain, as it appears in "[domain.tld]" references, to a merchant name.
type merchantDomain struct {
	Pattern string
	Name    string
}

// ordered; first match wins.
var merchantDomains = []merchantDomain{
	{Pattern: `amazon\.(com|ca|co\.uk|de)`, Name: "Amazon"},
	{Pattern: `walmart\.(com|ca)`, Name: "Walmart"},
	{Pattern: `target\.com`, Name: "Target"},
	{Pattern: `bestbuy\.(com|ca)`, Name: "Best Buy"},
	{Pattern: `costco\.(com|ca)`, Name: "Costco"},
	{Pattern: `ebay\.(com|ca|co\.uk)`, Name: "eBay"},
	{Pattern: `newegg\.(com|ca)`, Name: "Newegg"},
	{Pattern: `homedepot\.(com|ca)`, Name: "Home Depot"},
	{Pattern: `lowes\.com`, Name: "Lowe's"},
	{Pattern: `kohls\.com`, Name: "Kohl's"},
	{Pattern: `macys\.com`, Name: "Macy's"},
	{Pattern: `samsclub\.com`, Name: "Sam's Club"},
	{Pattern: `gamestop\.com`, Name: "GameStop"},
	{Pattern: `staples\.com`, Name: "Staples"},
	{Pattern: `woot\.com`, Name: "Woot"},
	{Pattern: `nike\.com`, Name: "Nike"},
	{Pattern: `adidas\.com`, Name: "Adidas"},
	{Pattern: `apple\.com`, Name: "Apple"},
	{Pattern: `dell\.com`, Name: "Dell"},
	{Pattern: `lenovo\.com`, Name: "Lenovo"},
	{Pattern: `hp\.com`, Name: "HP"},
	{Pattern: `samsung\.com`, Name: "Samsung"},
	{Pattern: `microsoft\.com`, Name: "Microsoft"},
	{Pattern: `nordstrom(rack)?\.com`, Name: "Nordstrom"},
	{Pattern: `wayfair\.com`, Name: "Wayfair"},
	{Pattern: `etsy\.com`, Name: "Etsy"},
	{Pattern: `aliexpress\.com`, Name: "AliExpress"},
	{Pattern: `steampowered\.com`, Name: "Steam"},
	{Pattern: `bhphotovideo\.com`, Name: "B&H Photo"},
}

// names looked for verbatim when no bracket or phrase matched.
var merchantKeywords = []string{
	"Amazon", "Walmart", "Target", "Best Buy", "Costco", "eBay", "Newegg", "Home Depot",
	"Lowe's", "Kohl's", "Macy's", "Sam's Club", "GameStop", "Staples", "Woot", "Nike",
	"Adidas", "Dell", "Lenovo", "Samsung", "Microsoft", "Nordstrom", "Wayfair", "Etsy",
	"AliExpress", "Steam", "B&H Photo",
}

// capitalized words a "via/at/from X" phrase must not resolve to.
var merchantStopwords = map[string]struct{}{
	"Checkout": {}, "Cart": {}, "Home": {}, "Store": {}, "Stores": {}, "Select": {},
	"The": {}, "Prime": {}, "Launch": {}, "Retail": {}, "Participating": {},
}

var (
	domainRefExpr  = regexp.MustCompile(`(?i)\[((?:[a-z0-9-]+\.)+[a-z]{2,})\]`)
	genericRefExpr = regexp.MustCompile(`(?i)\[(?:www\.)?([a-z0-9-]+)\.(?:com|net|org|co|us|ca|io|shop|store)\]`)
	phraseExpr     = regexp.MustCompile(`\b(?:via|at|from)\s+([A-Z][A-Za-z0-9&'’-]*(?:\s+[A-Z][A-Za-z0-9&'’-]*){0,2})`)
)

// couponPatterns are evaluated in order over title + description; the first capture wins.
var couponPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:^|[^a-z])(?:with|use|using|via|w/)\s+(?:promo\s+|coupon\s+)?code\s+["']?([a-z0-9][a-z0-9_-]{2,})`),
	regexp.MustCompile(`(?i)\bcode:\s*["']?([a-z0-9][a-z0-9_-]{2,})`),
	regexp.MustCompile(`(?i)\bcoupon\s+code:\s*["']?([a-z0-9][a-z0-9_-]{2,})`),
}

// couponStopwords are upper-case words that follow "code" in prose rather than naming one.
var couponStopwords = map[string]struct{}{
	"FOR": {}, "AND": {}, "THE": {}, "NOT": {}, "NONE": {}, "BELOW": {}, "ABOVE": {},
	"HERE": {}, "REQUIRED": {}, "NEEDED": {}, "APPLIED": {}, "CHECKOUT": {},
}

// markupPatterns strip forum markup left in descriptions after HTML removal.
var markupPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\[/?(?:b|i|u|s|list|quote|code|center|left|right|spoiler|\*)\]`),
	regexp.MustCompile(`(?i)\[/?(?:url|img|color|size|font|email)(?:=[^\]]*)?\]`),
	domainRefExpr,
}

var (
	whitespaceExpr = regexp.MustCompile(`\s+`)
	priceExpr      = regexp.MustCompile(`\$\s?(\d{1,3}(?:,\d{3})+(?:\.\d{1,2})?|\d+(?:\.\d{1,2})?)`)
)
