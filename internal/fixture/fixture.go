// Package fixture serves a stand-in for the application under test: a page
// with a chosen title whose readiness text can appear late, or never.
package fixture

import (
	"html/template"
	"net/http"
	"time"
)

// Page describes what the fixture renders at "/".
type Page struct {
	// Title is written verbatim into <title>.
	Title string

	// Text is the readiness text shown in the page heading.
	Text string

	// Delay postpones inserting Text into the DOM, client-side, after load.
	// Zero renders it with the initial HTML.
	Delay time.Duration

	// Status overrides the response code. Zero means 200.
	Status int
}

// PassportPal is the page the verification targets by default.
var PassportPal = Page{
	Title: "Passport Pal - Child Passport Guide",
	Text:  "Passport Pal",
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            background: #f0f4f8;
            display: flex;
            align-items: center;
            justify-content: center;
            min-height: 100vh;
            margin: 0;
        }
        .card {
            background: white;
            border-radius: 12px;
            box-shadow: 0 20px 60px rgba(0, 0, 0, 0.15);
            padding: 3rem;
            max-width: 600px;
        }
        h1 { color: #1d4ed8; }
    </style>
</head>
<body>
    <div class="card">
        <h1 id="brand">{{if not .DelayMillis}}{{.Text}}{{end}}</h1>
        <p>Everything you need to apply for your child's first passport.</p>
    </div>
    {{if .DelayMillis}}
    <script>
        setTimeout(function () {
            document.getElementById("brand").textContent = {{.Text}};
        }, {{.DelayMillis}});
    </script>
    {{end}}
</body>
</html>
`))

// Handler returns an http.Handler that renders page at "/" and 404s elsewhere.
func Handler(page Page) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		if page.Status != 0 {
			w.WriteHeader(page.Status)
		}
		_ = pageTemplate.Execute(w, struct {
			Page
			DelayMillis int64
		}{page, page.Delay.Milliseconds()})
	})
	return mux
}
