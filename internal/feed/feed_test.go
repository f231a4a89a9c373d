package feed

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeEscapesStrayMarkup(t *testing.T) {
	t.Parallel()

	raw := "<title>Tom & Jerry < 5 &amp; &nbsp; &#39; &#x27; &bogus; \x01\x0b</title>"
	got := string(Sanitize([]byte(raw)))

	assert.Equal(t, "<title>Tom &amp; Jerry &lt; 5 &amp; &nbsp; &#39; &#x27; &amp;bogus; </title>", got)
}

func TestSanitizeLeavesCDATAAlone(t *testing.T) {
	t.Parallel()

	raw := "<d><![CDATA[a & b < c]]> & </d>"
	assert.Equal(t, "<d><![CDATA[a & b < c]]> &amp; </d>", string(Sanitize([]byte(raw))))
}

func TestSanitizeKeepsCommentsAndInstructions(t *testing.T) {
	t.Parallel()

	raw := `<?xml version="1.0"?><!-- note --><rss/>`
	assert.Equal(t, raw, string(Sanitize([]byte(raw))))
}

func TestStrayLatin1ByteKeepsLaterItems(t *testing.T) {
	t.Parallel()

	raw := "<?xml version=\"1.0\" encoding=\"UTF-8\"?><rss><channel>" +
		"<item><title>One</title></item>" +
		"<item><title>Caf\xe9 deals</title></item>" +
		"<item><title>Three</title></item>" +
		"<item><title>Four</title></item>" +
		"</channel></rss>"

	root, err := Parse(Sanitize([]byte(raw)))
	require.NoError(t, err)

	items := ExtractItems(root)
	require.Len(t, items, 4)
	assert.Equal(t, "Café deals", items[1].ChildText("title"))
	assert.Equal(t, "Four", items[3].ChildText("title"))
}

func TestSanitizeKeepsBytesOfDeclaredLegacyCharset(t *testing.T) {
	t.Parallel()

	raw := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?><rss><title>Caf\xe9</title></rss>"
	assert.Equal(t, raw, string(Sanitize([]byte(raw))))

	root, err := Parse(Sanitize([]byte(raw)))
	require.NoError(t, err)
	assert.Equal(t, "Café", root.ChildText("title"))
}

func TestParseSanitizedText(t *testing.T) {
	t.Parallel()

	raw := "<rss><channel><item><title>Tom & Jerry < 5 &amp; more</title></item></channel></rss>"
	root, err := Parse(Sanitize([]byte(raw)))
	require.NoError(t, err)

	items := ExtractItems(root)
	require.Len(t, items, 1)
	assert.Equal(t, "Tom & Jerry < 5 & more", items[0].ChildText("title"))
}

func TestParseRecoversFromMismatchedTags(t *testing.T) {
	t.Parallel()

	raw := `<rss><channel>
		<item><title>A</title><link>https://a.example/1</link></b></item>
		<item><title>B</title><link>https://a.example/2</link>
	</channel></rss>`

	root, err := Parse([]byte(raw))
	require.NoError(t, err)

	items := ExtractItems(root)
	require.Len(t, items, 2)
	assert.Equal(t, "A", items[0].ChildText("title"))
	assert.Equal(t, "https://a.example/2", items[1].ChildText("link"))
}

func TestParseKeepsPartialTreeOnTruncation(t *testing.T) {
	t.Parallel()

	raw := `<rss><channel><item><title>A</title></item><item><title>B</title>`
	root, err := Parse([]byte(raw))
	require.NoError(t, err)

	items := ExtractItems(root)
	require.Len(t, items, 2)
	assert.Equal(t, "B", items[1].ChildText("title"))
}

func TestParseRejectsDocumentWithoutRoot(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("not xml at all"))
	assert.Error(t, err)
}

func TestExtractItemsShapes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		doc  string
		want int
	}{
		{
			name: "rss2",
			doc:  `<rss version="2.0"><channel><title>c</title><item><title>1</title></item><item><title>2</title></item></channel></rss>`,
			want: 2,
		},
		{
			name: "atom",
			doc:  `<feed xmlns="http://www.w3.org/2005/Atom"><entry><title>1</title></entry></feed>`,
			want: 1,
		},
		{
			name: "rdf",
			doc: `<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#" xmlns="http://purl.org/rss/1.0/">
				<channel><title>c</title></channel><item><title>1</title></item><item><title>2</title></item><item><title>3</title></item>
			</rdf:RDF>`,
			want: 3,
		},
		{
			name: "nested fallback",
			doc:  `<root><wrapper><list><item><title>1</title></item></list></wrapper></root>`,
			want: 1,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			root, err := Parse([]byte(tc.doc))
			require.NoError(t, err)
			assert.Len(t, ExtractItems(root), tc.want)
		})
	}
}

func TestExtractItemsDepthLimit(t *testing.T) {
	t.Parallel()

	deep := "<a>" + strings.Repeat("<n>", MaxSearchDepth+1) + "<item/>" + strings.Repeat("</n>", MaxSearchDepth+1) + "</a>"
	root, err := Parse([]byte(deep))
	require.NoError(t, err)
	assert.Empty(t, ExtractItems(root))

	shallow := "<a>" + strings.Repeat("<n>", MaxSearchDepth) + "<item/>" + strings.Repeat("</n>", MaxSearchDepth) + "</a>"
	root, err = Parse([]byte(shallow))
	require.NoError(t, err)
	assert.Len(t, ExtractItems(root), 1)
}

func TestNamespacePrefixesAreNormalized(t *testing.T) {
	t.Parallel()

	doc := `<rss xmlns:m="http://search.yahoo.com/mrss/"><channel><item>
		<m:thumbnail url="https://img.example/t.jpg"/>
	</item></channel></rss>`
	root, err := Parse([]byte(doc))
	require.NoError(t, err)

	items := ExtractItems(root)
	require.Len(t, items, 1)
	assert.Equal(t, "https://img.example/t.jpg", items[0].Child("media:thumbnail").Attr("url"))
}

func TestTextFieldShapes(t *testing.T) {
	t.Parallel()

	doc := `<item>
		<a>plain</a>
		<b><span>wrapped</span> text</b>
		<c term="tech"/>
		<d type="html">typed</d>
		<e/>
	</item>`
	root, err := Parse([]byte(doc))
	require.NoError(t, err)

	a := FieldOf(root.Child("a"))
	assert.Equal(t, TextPlain, a.Kind)
	assert.Equal(t, "plain", ExtractText(a))

	b := FieldOf(root.Child("b"))
	assert.Equal(t, TextWrapped, b.Kind)
	assert.Equal(t, "wrapped text", ExtractText(b))

	c := FieldOf(root.Child("c"))
	assert.Equal(t, TextAttributed, c.Kind)
	assert.Equal(t, "tech", ExtractText(c))

	assert.Equal(t, "typed", ExtractText(FieldOf(root.Child("d"))))
	assert.Equal(t, "", ExtractText(FieldOf(root.Child("e"))))
	assert.Equal(t, TextEmpty, FieldOf(root.Child("missing")).Kind)
}

func TestFromJSON(t *testing.T) {
	t.Parallel()

	var payload any
	require.NoError(t, json.Unmarshal([]byte(`{
		"title": "Deal",
		"price": 12.5,
		"tags": ["a", "b"],
		"link": {"href": "https://x.example/d", "rel": "alternate"}
	}`), &payload))

	node := FromJSON("item", payload)

	assert.Equal(t, "Deal", node.ChildText("title"))
	assert.Equal(t, "12.5", node.ChildText("price"))
	assert.Len(t, node.ChildrenNamed("tags"), 2)
	assert.Equal(t, "https://x.example/d", node.Child("link").Attr("href"))
}
