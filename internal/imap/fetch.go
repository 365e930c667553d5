package imap

import (
	"errors"
	"fmt"
	"io"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

// ErrMessageNotFound is returned when the server has no message with the requested UID.
var ErrMessageNotFound = errors.New("message not found")

// FetchFullMessage fetches the envelope, internal date and full RFC 822 content of
// the message with uid. Reading BODY[] (not BODY.PEEK[]) lets the server flag it seen.
func FetchFullMessage(c *client.Client, uid uint32) (*imap.Message, []byte, error) {
	if c == nil {
		return nil, nil, fmt.Errorf("client is nil")
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{
		imap.FetchEnvelope,
		imap.FetchInternalDate,
		imap.FetchUid,
		section.FetchItem(),
	}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)

	go func() {
		done <- c.UidFetch(seqSet, items, messages)
	}()

	var msg *imap.Message
	var raw []byte
	var readErr error
	for m := range messages {
		if msg != nil {
			continue
		}
		msg = m
		if body := m.GetBody(section); body != nil {
			raw, readErr = io.ReadAll(body)
		}
	}

	if err := <-done; err != nil {
		return nil, nil, fmt.Errorf("failed to fetch message: %w", err)
	}

	if msg == nil {
		return nil, nil, fmt.Errorf("uid %d: %w", uid, ErrMessageNotFound)
	}

	if readErr != nil {
		return nil, nil, fmt.Errorf("failed to read message body: %w", readErr)
	}

	return msg, raw, nil
}
