package config

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/widgetwatch/dbopen"
)

func TestLoadPages(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	now := time.Now().Unix()
	for _, row := range []struct{ id, url, stealth, status string }{
		{"b", "https://b.example/", "headful", "active"},
		{"a", "https://a.example/", "", "active"},
		{"c", "https://c.example/", "", "paused"},
	} {
		if _, err := db.Exec(`INSERT INTO chat_pages (id, url, stealth, status, updated_at) VALUES (?,?,?,?,?)`,
			row.id, row.url, row.stealth, row.status, now); err != nil {
			t.Fatal(err)
		}
	}

	pages, err := LoadPages(context.Background(), db)
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 2 {
		t.Fatalf("pages: got %d, want 2 (paused excluded)", len(pages))
	}
	if pages[0].ID != "a" || pages[1].Stealth != "headful" {
		t.Fatalf("pages: %+v", pages)
	}
}

func TestPollPages_PicksUpNewRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pages.db")
	writer, err := dbopen.Open(path, dbopen.WithSchema(Schema))
	if err != nil {
		t.Fatal(err)
	}
	defer writer.Close()
	reader, err := dbopen.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()
	reader.SetMaxOpenConns(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan []PageConfig, 4)
	go PollPages(ctx, reader, 10*time.Millisecond, nil, func(p []PageConfig) { got <- p })

	select {
	case p := <-got:
		if len(p) != 0 {
			t.Fatalf("initial load: %+v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no initial load")
	}

	if _, err := writer.Exec(`INSERT INTO chat_pages (id, url, updated_at) VALUES ('n', 'https://n.example/', 1)`); err != nil {
		t.Fatal(err)
	}

	select {
	case p := <-got:
		if len(p) != 1 || p[0].ID != "n" {
			t.Fatalf("after insert: %+v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("change not detected")
	}
}
