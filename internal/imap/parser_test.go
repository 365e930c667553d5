package imap

import (
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap"
)

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

func TestFormatAddress(t *testing.T) {
	t.Run("formats address with personal name", func(t *testing.T) {
		address := &imap.Address{
			PersonalName: "John Doe",
			MailboxName:  "john",
			HostName:     "example.com",
		}

		result := formatAddress(address)
		expected := "John Doe <john@example.com>"
		if result != expected {
			t.Errorf("Expected %s, got %s", expected, result)
		}
	})

	t.Run("formats address without personal name", func(t *testing.T) {
		address := &imap.Address{
			MailboxName: "jane",
			HostName:    "example.com",
		}

		result := formatAddress(address)
		if result != "jane@example.com" {
			t.Errorf("Expected jane@example.com, got %s", result)
		}
	})

	t.Run("returns empty string for nil or empty address", func(t *testing.T) {
		if result := formatAddress(nil); result != "" {
			t.Errorf("Expected empty string, got %s", result)
		}
		if result := formatAddress(&imap.Address{}); result != "" {
			t.Errorf("Expected empty string, got %s", result)
		}
	})
}

func TestExtractBody(t *testing.T) {
	tests := []struct {
		name     string
		raw      []byte
		expected string
	}{
		{
			name: "single part plain text is trimmed",
			raw: crlf(`From: a@example.com
Subject: Hi
Content-Type: text/plain; charset=utf-8

  Are you free Thursday?

`),
			expected: "Are you free Thursday?",
		},
		{
			name: "single part quoted-printable is decoded",
			raw: crlf(`From: a@example.com
Content-Type: text/plain; charset=utf-8
Content-Transfer-Encoding: quoted-printable

Caf=C3=A9 at noon?
`),
			expected: "Café at noon?",
		},
		{
			name: "single part latin1 is converted",
			raw: append(crlf(`From: a@example.com
Content-Type: text/plain; charset=iso-8859-1

`), []byte("Gr\xfc\xdfe")...),
			expected: "Grüße",
		},
		{
			name: "multipart picks first plain text part",
			raw: crlf(`From: a@example.com
Content-Type: multipart/alternative; boundary="b1"

--b1
Content-Type: text/html; charset=utf-8

<p>html version</p>
--b1
Content-Type: text/plain; charset=utf-8

plain version
--b1
Content-Type: text/plain; charset=utf-8

second plain
--b1--
`),
			expected: "plain version",
		},
		{
			name: "multipart skips plain text attachments",
			raw: crlf(`From: a@example.com
Content-Type: multipart/mixed; boundary="b2"

--b2
Content-Type: text/plain; charset=utf-8
Content-Disposition: attachment; filename="notes.txt"

attached notes
--b2
Content-Type: text/plain; charset=utf-8

the real body
--b2--
`),
			expected: "the real body",
		},
		{
			name: "multipart without plain text yields empty body",
			raw: crlf(`From: a@example.com
Content-Type: multipart/alternative; boundary="b3"

--b3
Content-Type: text/html; charset=utf-8

<p>only html</p>
--b3--
`),
			expected: "",
		},
		{
			name: "nested multipart is walked",
			raw: crlf(`From: a@example.com
Content-Type: multipart/mixed; boundary="outer"

--outer
Content-Type: multipart/alternative; boundary="inner"

--inner
Content-Type: text/plain; charset=utf-8

nested plain
--inner--
--outer--
`),
			expected: "nested plain",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ExtractBody(tt.raw)
			if result != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestParseMessage(t *testing.T) {
	t.Run("returns error for nil message", func(t *testing.T) {
		if _, err := ParseMessage(nil, nil); err == nil {
			t.Error("Expected error for nil message")
		}
	})

	t.Run("prefers decoded headers from raw content", func(t *testing.T) {
		sent := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
		imapMsg := &imap.Message{
			Uid: 42,
			Envelope: &imap.Envelope{
				Subject: "envelope subject",
				Date:    sent,
				From:    []*imap.Address{{MailboxName: "sam", HostName: "example.com"}},
			},
		}
		raw := crlf(`From: =?utf-8?q?Sam_L=C3=A9e?= <sam@example.com>
Subject: =?utf-8?q?Quick_coffee=3F?=
Content-Type: text/plain; charset=utf-8

Are you free Thursday?
`)

		msg, err := ParseMessage(imapMsg, raw)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}

		if msg.ID != "42" {
			t.Errorf("Expected ID 42, got %s", msg.ID)
		}
		if msg.Subject != "Quick coffee?" {
			t.Errorf("Expected subject 'Quick coffee?', got %q", msg.Subject)
		}
		if msg.Sender != "Sam Lée <sam@example.com>" {
			t.Errorf("Expected decoded sender, got %q", msg.Sender)
		}
		if msg.Body != "Are you free Thursday?" {
			t.Errorf("Expected body, got %q", msg.Body)
		}
		if !msg.ReceivedAt.Equal(sent) {
			t.Errorf("Expected received at %v, got %v", sent, msg.ReceivedAt)
		}
	})

	t.Run("falls back to envelope without raw content", func(t *testing.T) {
		imapMsg := &imap.Message{
			Uid: 7,
			Envelope: &imap.Envelope{
				Subject: "Hello",
				From:    []*imap.Address{{PersonalName: "Ann", MailboxName: "ann", HostName: "example.com"}},
			},
		}

		msg, err := ParseMessage(imapMsg, nil)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if msg.Sender != "Ann <ann@example.com>" {
			t.Errorf("Expected envelope sender, got %q", msg.Sender)
		}
		if msg.Subject != "Hello" {
			t.Errorf("Expected envelope subject, got %q", msg.Subject)
		}
		if msg.Body != "" {
			t.Errorf("Expected empty body, got %q", msg.Body)
		}
	})
}
