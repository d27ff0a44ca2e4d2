package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"

	"github.com/JakeFAU/listing-crawler/internal/ledger"
)

func ExampleProgressHandler_Summary() {
	l := ledger.New()
	l.Put(ledger.Entry{URL: "https://example.test/search?suburb=carlton", Status: ledger.StatusCompleted, LastPage: 4})
	l.Put(ledger.Entry{URL: "https://example.test/search?suburb=fitzroy", Status: ledger.StatusFailed, LastPage: 2})

	handler := NewProgressHandler(staticSource{l: l}, nil)
	rec := httptest.NewRecorder()
	handler.Summary(rec, httptest.NewRequest(http.MethodGet, "/v1/progress/summary", nil))
	fmt.Print(rec.Body.String())
	// Output:
	// {"completed":1,"failed":1,"pending":0,"total":2}
}
