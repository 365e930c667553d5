package imap

import (
	"fmt"
	"sort"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

// SearchUnseen returns the UIDs of messages without the \Seen flag in the selected
// mailbox. When there are more than limit, only the last limit (most recent) are kept.
// The result is always in ascending order. A limit <= 0 means no limit.
func SearchUnseen(c *client.Client, limit int) ([]uint32, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}

	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search unseen messages: %w", err)
	}

	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })

	if limit > 0 && len(uids) > limit {
		uids = uids[len(uids)-limit:]
	}

	return uids, nil
}

// MarkSeen adds the \Seen flag to the message with uid.
func MarkSeen(c *client.Client, uid uint32) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := c.UidStore(seqSet, item, []interface{}{imap.SeenFlag}, nil); err != nil {
		return fmt.Errorf("failed to mark message %d seen: %w", uid, err)
	}

	return nil
}
