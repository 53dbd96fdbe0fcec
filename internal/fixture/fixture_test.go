package fixture

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/html"
)

func get(t *testing.T, h http.Handler, path string) (*http.Response, string) {
	t.Helper()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	resp := rec.Result()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, string(body)
}

// elementText returns the text of the first element named tag, the way a
// browser would read it after parsing.
func elementText(t *testing.T, body, tag string) string {
	t.Helper()

	tokenizer := html.NewTokenizer(strings.NewReader(body))
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			t.Fatalf("no <%s> element in:\n%s", tag, body)
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			if string(name) != tag {
				continue
			}
			if tokenizer.Next() != html.TextToken {
				return ""
			}
			return string(tokenizer.Text())
		}
	}
}

func TestHandler_RendersTitleAndText(t *testing.T) {
	t.Parallel()

	resp, body := get(t, Handler(PassportPal), "/")

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if got := elementText(t, body, "title"); got != "Passport Pal - Child Passport Guide" {
		t.Errorf("expected exact title, got %q", got)
	}
	if got := elementText(t, body, "h1"); got != "Passport Pal" {
		t.Errorf("expected readiness text in heading, got %q", got)
	}
	if strings.Contains(body, "<script>") {
		t.Error("unexpected script for an immediate page")
	}
}

func TestHandler_DelayedTextIsInjectedByScript(t *testing.T) {
	t.Parallel()

	page := PassportPal
	page.Delay = 1500 * time.Millisecond

	_, body := get(t, Handler(page), "/")

	if got := elementText(t, body, "h1"); got != "" {
		t.Errorf("text should not be in the initial HTML when delayed, got %q", got)
	}
	if !strings.Contains(body, "1500") {
		t.Errorf("expected delay in script:\n%s", body)
	}
	if !strings.Contains(body, `"Passport Pal"`) {
		t.Errorf("expected JS-quoted text in script:\n%s", body)
	}
}

func TestHandler_EscapesTitle(t *testing.T) {
	t.Parallel()

	_, body := get(t, Handler(Page{Title: "<b>Wrong</b> Title", Text: "x"}), "/")
	if strings.Contains(body, "<b>Wrong</b>") {
		t.Errorf("title not escaped:\n%s", body)
	}
	if got := elementText(t, body, "title"); got != "<b>Wrong</b> Title" {
		t.Errorf("expected title to round-trip, got %q", got)
	}
}

func TestHandler_StatusAndNotFound(t *testing.T) {
	t.Parallel()

	h := Handler(Page{Title: "down", Status: http.StatusServiceUnavailable})

	if resp, _ := get(t, h, "/"); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", resp.StatusCode)
	}
	if resp, _ := get(t, h, "/favicon.ico"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}
