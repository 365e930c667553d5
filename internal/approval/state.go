package approval

import "github.com/vdavid/mailagent/internal/models"

// State holds per-operator workflow data: at most one pending draft and the
// messages shown by the last list command. Operators are chat user IDs.
type State struct {
	drafts map[int64]*models.Draft
	listed map[int64][]*models.Message
}

// NewState returns empty state.
func NewState() *State {
	return &State{
		drafts: make(map[int64]*models.Draft),
		listed: make(map[int64][]*models.Message),
	}
}

// Pending returns the operator's draft, if any.
func (s *State) Pending(op int64) (*models.Draft, bool) {
	d, ok := s.drafts[op]
	return d, ok
}

// setDraft replaces any earlier draft.
func (s *State) setDraft(op int64, d *models.Draft) {
	s.drafts[op] = d
}

func (s *State) takeDraft(op int64) (*models.Draft, bool) {
	d, ok := s.drafts[op]
	if ok {
		delete(s.drafts, op)
	}
	return d, ok
}

func (s *State) setListed(op int64, msgs []*models.Message) {
	s.listed[op] = msgs
}

// listedAt returns the 1-based index-th listed message.
func (s *State) listedAt(op int64, index int) (*models.Message, bool) {
	msgs := s.listed[op]
	if index < 1 || index > len(msgs) {
		return nil, false
	}
	return msgs[index-1], true
}
