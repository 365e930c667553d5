package imap

import (
	"testing"

	"github.com/vdavid/mailagent/internal/testutil"
)

func TestSearchUnseen(t *testing.T) {
	t.Run("returns error for nil client", func(t *testing.T) {
		if _, err := SearchUnseen(nil, 5); err == nil {
			t.Error("Expected error for nil client")
		}
	})

	t.Run("returns only unseen messages", func(t *testing.T) {
		server := testutil.NewTestIMAPServer(t)
		read := server.AddMessage(t, testutil.TestMessage{From: "a@example.com", Subject: "old", Body: "x", Seen: true})
		unread := server.AddMessage(t, testutil.TestMessage{From: "b@example.com", Subject: "new", Body: "y"})

		c := server.Connect(t)
		uids, err := SearchUnseen(c, 10)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}

		if !containsUID(uids, unread) {
			t.Errorf("Expected unseen UID %d in %v", unread, uids)
		}
		if containsUID(uids, read) {
			t.Errorf("Expected seen UID %d to be excluded from %v", read, uids)
		}
	})

	t.Run("keeps the most recent UIDs in ascending order", func(t *testing.T) {
		server := testutil.NewTestIMAPServer(t)
		var added []uint32
		for i := 0; i < 4; i++ {
			added = append(added, server.AddMessage(t, testutil.TestMessage{From: "a@example.com", Subject: "m", Body: "x"}))
		}

		c := server.Connect(t)
		uids, err := SearchUnseen(c, 2)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}

		if len(uids) != 2 {
			t.Fatalf("Expected 2 UIDs, got %v", uids)
		}
		if uids[0] != added[2] || uids[1] != added[3] {
			t.Errorf("Expected %v, got %v", added[2:], uids)
		}
	})
}

func TestMarkSeen(t *testing.T) {
	server := testutil.NewTestIMAPServer(t)
	uid := server.AddMessage(t, testutil.TestMessage{From: "a@example.com", Subject: "s", Body: "b"})

	c := server.Connect(t)
	if err := MarkSeen(c, uid); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if !server.IsSeen(t, uid) {
		t.Error("Expected message to be flagged seen")
	}

	uids, err := SearchUnseen(c, 10)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if containsUID(uids, uid) {
		t.Errorf("Expected UID %d to no longer be unseen", uid)
	}
}

func containsUID(uids []uint32, uid uint32) bool {
	for _, u := range uids {
		if u == uid {
			return true
		}
	}
	return false
}
