package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFetchHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><head><title>ignored</title><script>var x = 1;</script></head>
			<body><h1>Heading</h1><p>Paragraph one.</p><style>.a{}</style><p>Paragraph two.</p></body></html>`))
	}))
	defer srv.Close()

	text, err := New(nil).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	for _, want := range []string{"Heading", "Paragraph one.", "Paragraph two."} {
		if !strings.Contains(text, want) {
			t.Errorf("text missing %q: %q", want, text)
		}
	}
	for _, unwanted := range []string{"var x", ".a{}", "ignored"} {
		if strings.Contains(text, unwanted) {
			t.Errorf("text contains %q: %q", unwanted, text)
		}
	}
}

func TestFetchPlainText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("just text"))
	}))
	defer srv.Close()

	text, err := New(nil).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if text != "just text" {
		t.Errorf("text = %q", text)
	}
}

func TestFetchBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	if _, err := New(nil).Fetch(context.Background(), srv.URL); err == nil {
		t.Error("Fetch of 404 succeeded")
	}
}

func TestFetchAllTagsFailures(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("good content"))
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer bad.Close()

	corpus := New(nil).FetchAll(context.Background(), []string{good.URL, bad.URL})

	if !strings.Contains(corpus, "good content") {
		t.Errorf("corpus missing good content: %q", corpus)
	}
	if !strings.Contains(corpus, "[fetch failed] "+bad.URL) {
		t.Errorf("corpus missing tagged failure for %s: %q", bad.URL, corpus)
	}
	// Blocks preserve input order.
	if strings.Index(corpus, "good content") > strings.Index(corpus, "[fetch failed]") {
		t.Errorf("corpus blocks out of order: %q", corpus)
	}
}

func TestFetchAllEmpty(t *testing.T) {
	if got := New(nil).FetchAll(context.Background(), nil); got != "" {
		t.Errorf("FetchAll(nil) = %q, want empty", got)
	}
}
