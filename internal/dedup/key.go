package dedup

import (
	"net/url"
	"sort"
	"strings"

	"DealScanner/internal/domain"
)

// Key derives the identity used to decide whether two observations are the same offer.
// A source-scoped external id wins when it is distinct from the url; otherwise the normalized url is used,
// which lets different sources collapse onto one record.
func Key(deal domain.NormalizedDeal) string {
	if deal.ExternalID != "" && deal.ExternalID != deal.URL {
		return "ext:" + deal.Source + ":" + deal.ExternalID
	}
	return "url:" + NormalizeURL(deal.URL)
}

var trackingParams = map[string]struct{}{
	"fbclid": {}, "gclid": {}, "mc_cid": {}, "mc_eid": {}, "ref_src": {},
}

// NormalizeURL canonicalizes a url for comparison: lower-case scheme and host, no default port,
// no fragment, no trailing slash, no tracking parameters, sorted query.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.ToLower(raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if port := u.Port(); port != "" && !(u.Scheme == "http" && port == "80") && !(u.Scheme == "https" && port == "443") {
		host += ":" + port
	}
	u.Host = host
	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil

	if u.Path != "/" {
		u.Path = strings.TrimRight(u.Path, "/")
	}
	if u.Path == "/" {
		u.Path = ""
	}
	u.RawPath = ""

	query := u.Query()
	for name := range query {
		lower := strings.ToLower(name)
		if _, drop := trackingParams[lower]; drop || strings.HasPrefix(lower, "utm_") {
			query.Del(name)
		}
	}
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		vals := query[k]
		sort.Strings(vals)
		for _, v := range vals {
			parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(v))
		}
	}
	u.RawQuery = strings.Join(parts, "&")

	return u.String()
}
