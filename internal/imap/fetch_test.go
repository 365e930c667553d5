package imap

import (
	"errors"
	"strings"
	"testing"

	"github.com/vdavid/mailagent/internal/testutil"
)

func TestFetchFullMessage(t *testing.T) {
	t.Run("returns error for nil client", func(t *testing.T) {
		if _, _, err := FetchFullMessage(nil, 1); err == nil {
			t.Error("Expected error for nil client")
		}
	})

	t.Run("fetches envelope and raw content", func(t *testing.T) {
		server := testutil.NewTestIMAPServer(t)
		uid := server.AddMessage(t, testutil.TestMessage{
			From:    "Sam Lee <sam@example.com>",
			Subject: "Quick coffee?",
			Body:    "Are you free Thursday?",
		})

		c := server.Connect(t)
		msg, raw, err := FetchFullMessage(c, uid)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}

		if msg.Uid != uid {
			t.Errorf("Expected UID %d, got %d", uid, msg.Uid)
		}
		if msg.Envelope == nil || msg.Envelope.Subject != "Quick coffee?" {
			t.Errorf("Expected envelope with subject, got %+v", msg.Envelope)
		}
		if !strings.Contains(string(raw), "Are you free Thursday?") {
			t.Errorf("Expected raw content to contain the body, got %q", raw)
		}
	})

	t.Run("returns not found for unknown UID", func(t *testing.T) {
		server := testutil.NewTestIMAPServer(t)
		c := server.Connect(t)

		_, _, err := FetchFullMessage(c, 99999)
		if !errors.Is(err, ErrMessageNotFound) {
			t.Errorf("Expected ErrMessageNotFound, got %v", err)
		}
	})
}
