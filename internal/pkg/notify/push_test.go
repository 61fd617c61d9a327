package notify

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"fleahunter/internal/model"
)

func testRecord() *model.ProductRecord {
	return &model.ProductRecord{
		TaskName: "iphone watch",
		BasicInfo: model.BasicItem{
			ItemID: "912",
			Title:  "iPhone 13 国行 256G 无拆修",
			Price:  "¥3200",
			Link:   "https://www.goofish.com/item?id=912",
		},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNtfySendHeaders(t *testing.T) {
	var gotTitle, gotClick, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTitle = r.Header.Get("Title")
		gotClick = r.Header.Get("Click")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
	}))
	defer srv.Close()

	n := NewNtfyNotifier(srv.URL, testLogger())
	if err := n.Send(context.Background(), testRecord(), "价格低于市场价"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.Contains(gotTitle, "iPhone 13") {
		t.Fatalf("title = %q", gotTitle)
	}
	if gotClick != "https://www.goofish.com/item?id=912" {
		t.Fatalf("click = %q", gotClick)
	}
	if !strings.Contains(gotBody, "¥3200") || !strings.Contains(gotBody, "价格低于市场价") {
		t.Fatalf("body = %q", gotBody)
	}
}

func TestWebhookSendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, testLogger())
	if err := n.Send(context.Background(), testRecord(), "r"); err == nil {
		t.Fatal("expected error on 502")
	}
}

func TestMultiContinuesAfterFailure(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()
	hits := 0
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer good.Close()

	multi := NewMulti(testLogger(),
		NewWebhookNotifier(bad.URL, testLogger()),
		NewNtfyNotifier(good.URL, testLogger()),
	)
	if err := multi.Send(context.Background(), testRecord(), "r"); err != nil {
		t.Fatalf("multi send: %v", err)
	}
	if hits != 1 {
		t.Fatalf("second channel not reached, hits = %d", hits)
	}
}
