package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vdavid/mailagent/internal/journal"
	"github.com/vdavid/mailagent/internal/logging"
	"github.com/vdavid/mailagent/internal/models"
	"github.com/vdavid/mailagent/internal/reply"
	"github.com/vdavid/mailagent/internal/seen"
	"github.com/vdavid/mailagent/internal/testutil"
)

type recordingJournal struct {
	mu       sync.Mutex
	attempts []journal.Attempt
}

func (r *recordingJournal) Record(_ context.Context, a journal.Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, a)
	return nil
}

type failingSeen struct{ seen.Memory }

func (f *failingSeen) Contains(context.Context, string) (bool, error) {
	return false, errors.New("store down")
}

type unrecordableSeen struct{ seen.Memory }

func (u *unrecordableSeen) Add(context.Context, string) error {
	return errors.New("store down")
}

func testOptions() Options {
	return Options{
		Address:       "me@example.com",
		AutoReply:     true,
		CheckInterval: time.Minute,
		MaxPerCheck:   5,
	}
}

func newTestAgent(mb *testutil.FakeMailbox, opts ...Option) *Agent {
	return New(testOptions(), mb, reply.Template{}, seen.NewMemory(), logging.Discard(), opts...)
}

func coffee(id string) models.Message {
	return models.Message{
		ID:      id,
		Sender:  "Sam Lee <sam@example.com>",
		Subject: "Quick coffee?",
		Body:    "Are you free Thursday?",
	}
}

func TestPollOnceRepliesToNewMessages(t *testing.T) {
	mb := testutil.NewFakeMailbox()
	mb.Deliver(coffee("1"))
	j := &recordingJournal{}

	a := newTestAgent(mb, WithJournal(j))
	outcomes := a.PollOnce(context.Background())

	require.Len(t, outcomes, 1)
	assert.Equal(t, Outcome{
		MessageID: "1",
		Recipient: "Sam Lee <sam@example.com>",
		Subject:   "Re: Quick coffee?",
		Generator: reply.TemplateName,
	}, outcomes[0])

	sent := mb.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "me@example.com", sent[0].From)
	assert.Equal(t, "Sam Lee <sam@example.com>", sent[0].To)
	assert.Equal(t, "Re: Quick coffee?", sent[0].Subject)
	assert.True(t, strings.HasPrefix(sent[0].Body, "Dear Sam,"))
	assert.Contains(t, sent[0].Body, "invitation")

	require.Len(t, j.attempts, 1)
	assert.Equal(t, sent[0].Body, j.attempts[0].Body)
	assert.NoError(t, j.attempts[0].Err)
}

func TestPollOnceDeduplicatesAcrossCycles(t *testing.T) {
	mb := testutil.NewFakeMailbox()
	mb.Deliver(coffee("1"))
	a := newTestAgent(mb)
	ctx := context.Background()

	require.Len(t, a.PollOnce(ctx), 1)

	// The message shows up as unseen again, e.g. the user marked it unread.
	mb.MarkUnseen("1")
	assert.Empty(t, a.PollOnce(ctx))

	assert.Equal(t, []string{"1"}, mb.Fetches)
	assert.Len(t, mb.Sent(), 1)
}

func TestPollOnceRetriesFailedFetch(t *testing.T) {
	mb := testutil.NewFakeMailbox()
	mb.Deliver(coffee("1"))
	mb.FetchErr["1"] = errors.New("connection reset")
	a := newTestAgent(mb)
	ctx := context.Background()

	assert.Empty(t, a.PollOnce(ctx))
	assert.Empty(t, mb.Sent())

	delete(mb.FetchErr, "1")
	assert.Len(t, a.PollOnce(ctx), 1)
	assert.Len(t, mb.Sent(), 1)
}

func TestPollOnceContinuesAfterSendFailure(t *testing.T) {
	mb := testutil.NewFakeMailbox()
	mb.Deliver(models.Message{ID: "1", Sender: "bounce@example.com", Subject: "Hello", Body: "hi"})
	mb.Deliver(coffee("2"))
	mb.SendErr["bounce@example.com"] = errors.New("550 mailbox unavailable")
	j := &recordingJournal{}
	a := newTestAgent(mb, WithJournal(j))
	ctx := context.Background()

	outcomes := a.PollOnce(ctx)

	require.Len(t, outcomes, 2)
	assert.Error(t, outcomes[0].Err)
	assert.NoError(t, outcomes[1].Err)
	assert.Len(t, mb.Sent(), 1)

	require.Len(t, j.attempts, 2)
	assert.Error(t, j.attempts[0].Err)

	// The failed message is not retried.
	assert.Empty(t, a.PollOnce(ctx))
}

func TestPollOnceRespectsBatchLimit(t *testing.T) {
	mb := testutil.NewFakeMailbox()
	for _, id := range []string{"1", "2", "3"} {
		mb.Deliver(coffee(id))
	}
	opts := testOptions()
	opts.MaxPerCheck = 2
	a := New(opts, mb, reply.Template{}, seen.NewMemory(), logging.Discard())

	outcomes := a.PollOnce(context.Background())

	require.Len(t, outcomes, 2)
	assert.Equal(t, "2", outcomes[0].MessageID)
	assert.Equal(t, "3", outcomes[1].MessageID)
}

func TestPollOnceWithAutoReplyDisabled(t *testing.T) {
	mb := testutil.NewFakeMailbox()
	mb.Deliver(coffee("1"))
	opts := testOptions()
	opts.AutoReply = false
	a := New(opts, mb, reply.Template{}, seen.NewMemory(), logging.Discard())

	assert.Nil(t, a.PollOnce(context.Background()))
	assert.Empty(t, mb.Fetches)
}

func TestPollOnceSkipsWhenSeenStoreFails(t *testing.T) {
	mb := testutil.NewFakeMailbox()
	mb.Deliver(coffee("1"))
	a := New(testOptions(), mb, reply.Template{}, &failingSeen{}, logging.Discard())

	assert.Empty(t, a.PollOnce(context.Background()))
	assert.Empty(t, mb.Fetches)
}

func TestPollOnceSkipsWhenMessageCannotBeRecorded(t *testing.T) {
	mb := testutil.NewFakeMailbox()
	mb.Deliver(coffee("1"))
	a := New(testOptions(), mb, reply.Template{}, &unrecordableSeen{}, logging.Discard())

	assert.Empty(t, a.PollOnce(context.Background()))
	assert.Empty(t, mb.Sent())
}

func TestPollOnceStopsWhenCancelledDuringDelay(t *testing.T) {
	mb := testutil.NewFakeMailbox()
	mb.Deliver(coffee("1"))
	mb.Deliver(coffee("2"))
	a := newTestAgent(mb)

	ctx, cancel := context.WithCancel(context.Background())
	a.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	assert.Empty(t, a.PollOnce(ctx))
	assert.Empty(t, mb.Sent())
}

func TestRun(t *testing.T) {
	t.Run("fails fast when connect fails", func(t *testing.T) {
		mb := testutil.NewFakeMailbox()
		mb.ConnectErr = errors.New("dial tcp: refused")
		a := newTestAgent(mb)

		err := a.Run(context.Background())
		assert.ErrorContains(t, err, "refused")
		assert.Equal(t, 0, mb.Closes)
	})

	t.Run("polls until cancelled then closes", func(t *testing.T) {
		mb := testutil.NewFakeMailbox()
		mb.Deliver(coffee("1"))
		a := newTestAgent(mb)

		ctx, cancel := context.WithCancel(context.Background())
		cycles := 0
		a.sleep = func(ctx context.Context, d time.Duration) error {
			if d == a.opts.CheckInterval {
				cycles++
				if cycles == 2 {
					cancel()
					return ctx.Err()
				}
			}
			return nil
		}

		require.NoError(t, a.Run(ctx))
		assert.Equal(t, 2, cycles)
		assert.Equal(t, 1, mb.Connects)
		assert.Equal(t, 1, mb.Closes)
		assert.Len(t, mb.Sent(), 1)
	})
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), 0))
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
