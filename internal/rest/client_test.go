package rest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sensen312/GobTrades-sub000/internal/hub"
	"go.uber.org/zap"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, zap.NewNop())
	c.SetIdentity("goblin-7")
	return c
}

func TestFetchPreviews(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chats" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get(hub.IdentityHeader); got != "goblin-7" {
			t.Errorf("identity header = %q, want goblin-7", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"chatId":"c1","partnerId":"goblin-2","partnerName":"Snik","lastMessageText":"deal?","lastMessageAtUnixMs":1000,"unreadCount":2},
			{"chatId":"c2","partnerId":"goblin-3","partnerName":"Grub","lastMessageAtUnixMs":900,"unreadCount":0}
		]`))
	})

	previews, err := c.FetchPreviews(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(previews) != 2 {
		t.Fatalf("got %d previews, want 2", len(previews))
	}
	if previews[0].ChatID != "c1" || previews[0].UnreadCount != 2 || previews[0].PartnerName != "Snik" {
		t.Errorf("preview = %+v", previews[0])
	}
}

func TestFetchHistory(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chats/c1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("before") != "5000" || r.URL.Query().Get("limit") != "25" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"_id":"m1","chatId":"c1","senderId":"goblin-2","text":"oi","createdAtUnixMs":1000},
			{"_id":"m2","chatId":"c1","senderId":"goblin-7","imageRef":"img-9","createdAtUnixMs":2000}
		]`))
	})

	msgs, err := c.FetchHistory(context.Background(), "c1", 5000, 25)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].DurableID != "m1" || msgs[0].Status != "sent" {
		t.Errorf("message = %+v", msgs[0])
	}
	if msgs[1].ImageRef != "img-9" {
		t.Errorf("image ref = %q, want img-9", msgs[1].ImageRef)
	}
}

func TestFetchHistoryOmitsZeroCursor(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("before") {
			t.Error("zero cursor should omit the before param")
		}
		_, _ = w.Write([]byte(`[]`))
	})

	if _, err := c.FetchHistory(context.Background(), "c1", 0, 25); err != nil {
		t.Fatal(err)
	}
}

func TestMarkRead(t *testing.T) {
	var gotMethod, gotPath string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	})

	if err := c.MarkRead(context.Background(), "c1"); err != nil {
		t.Fatal(err)
	}
	if gotMethod != http.MethodPost || gotPath != "/api/chats/c1/read" {
		t.Errorf("request = %s %s", gotMethod, gotPath)
	}
}

func TestUploadImage(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		file, header, err := r.FormFile("image")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer func() { _ = file.Close() }()
		if header.Filename != "shiny.png" {
			t.Errorf("filename = %q, want shiny.png", header.Filename)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"imageRef":"ref-42"}`))
	})

	ref, err := c.UploadImage(context.Background(), "shiny.png", strings.NewReader("pngbytes"))
	if err != nil {
		t.Fatal(err)
	}
	if ref != "ref-42" {
		t.Errorf("image ref = %q, want ref-42", ref)
	}
}

func TestNonOKStatusIsTypedError(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such chat", http.StatusNotFound)
	})

	_, err := c.FetchHistory(context.Background(), "ghost", 0, 10)
	if err == nil {
		t.Fatal("expected error")
	}
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %T, want *StatusError", err)
	}
	if se.Code != http.StatusNotFound {
		t.Errorf("code = %d, want 404", se.Code)
	}
}
