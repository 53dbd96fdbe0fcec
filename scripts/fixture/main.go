// Command fixture serves a stand-in Passport Pal page for trying
// verifytitle locally:
//
//	go run ./scripts/fixture                    # correct page on :3000
//	go run ./scripts/fixture --title "Wrong"    # title mismatch
//	go run ./scripts/fixture --delay 3s         # text renders late
//	go run ./scripts/fixture 8080               # another port
package main

import (
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/grantcarthew/verifytitle/internal/fixture"
	"github.com/spf13/pflag"
)

func main() {
	page := fixture.PassportPal
	pflag.StringVar(&page.Title, "title", page.Title, "Document title to serve")
	pflag.StringVar(&page.Text, "text", page.Text, "Readiness text shown in the heading")
	pflag.DurationVar(&page.Delay, "delay", 0, "Delay before the text is inserted")
	pflag.IntVar(&page.Status, "status", 0, "HTTP status code for the page")
	pflag.Parse()

	port := "3000"
	if pflag.NArg() > 0 {
		port = pflag.Arg(0)
	}

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           fixture.Handler(page),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("Fixture serving %q on http://localhost:%s", page.Title, port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("Server error: %v", err)
		os.Exit(1)
	}
}
