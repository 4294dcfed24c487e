package slackbot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/slack-go/slack"
)

func TestThreadRepliesReturnsLatestMessages(t *testing.T) {
	pages := map[string]map[string]any{
		"": {
			"ok":                true,
			"has_more":          true,
			"response_metadata": map[string]string{"next_cursor": "page-2"},
			"messages": []map[string]string{
				{"ts": "1.0", "user": "U1", "text": "root"},
				{"ts": "1.1", "user": "U2", "text": "one"},
				{"ts": "1.2", "user": "U3", "text": "two"},
			},
		},
		"page-2": {
			"ok": true,
			"messages": []map[string]string{
				{"ts": "1.3", "user": "U2", "text": "three"},
				{"ts": "1.4", "user": "U1", "text": "<@UBOT> now?"},
			},
		},
	}
	var cursors []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/conversations.replies" {
			http.NotFound(w, r)
			return
		}
		cursor := r.FormValue("cursor")
		cursors = append(cursors, cursor)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(pages[cursor])
	}))
	defer srv.Close()

	api := slack.New("xoxb-test", slack.OptionAPIURL(srv.URL+"/"))
	msgs, err := NewWebMessenger(api).ThreadReplies(context.Background(), "C1", "1.0", 3)
	if err != nil {
		t.Fatalf("thread replies: %v", err)
	}
	if len(cursors) != 2 || cursors[1] != "page-2" {
		t.Fatalf("expected to follow the cursor, got %q", cursors)
	}
	if len(msgs) != 3 || msgs[0].Text != "two" || msgs[2].Timestamp != "1.4" {
		t.Fatalf("expected the three latest messages, got %+v", msgs)
	}
}
