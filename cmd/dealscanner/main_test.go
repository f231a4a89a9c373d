package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DealScanner/internal/domain"
)

func writeConfig(t *testing.T, feedURL string) string {
	t.Helper()
	body := fmt.Sprintf(`
logging:
  level: error
database:
  driver: memory
queue:
  inMemory: true
sources:
  - key: sd
    type: rss
    feedUrl: %s
  - key: partner
    type: api
    fetcherRef: json
    feedUrl: %s/api
`, feedURL, feedURL)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSourcesCommand(t *testing.T) {
	path := writeConfig(t, "https://feeds.example")

	out, err := execute(t, "sources", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "KEY")
	assert.Contains(t, out, "partner")
	assert.Contains(t, out, "json https://feeds.example/api")
	assert.Less(t, strings.Index(out, "partner"), strings.Index(out, "sd "))
}

func TestIngestCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<rss><channel>
			<item><title>50% Off Headphones</title><link>https://x.com/d1</link></item>
			<item><title>missing link</title></item>
		</channel></rss>`))
	}))
	defer srv.Close()

	out, err := execute(t, "ingest", "sd", "-c", writeConfig(t, srv.URL))
	require.NoError(t, err)

	var result domain.ProcessingResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, domain.ProcessingResult{Created: 1, Errors: 1}, result)
}

func TestIngestCommandUnknownSource(t *testing.T) {
	_, err := execute(t, "ingest", "nope", "-c", writeConfig(t, "https://feeds.example"))
	assert.ErrorIs(t, err, domain.ErrUnknownSource)
}

func TestEnqueueCommand(t *testing.T) {
	out, err := execute(t, "enqueue", "-c", writeConfig(t, "https://feeds.example"))
	require.NoError(t, err)
	assert.Contains(t, out, "enqueued partner")
	assert.Contains(t, out, "enqueued sd")
	assert.Contains(t, out, "queue: 2 queued, 0 in flight, 0 dead")
}
