// Package mailclient joins the IMAP reading session and the SMTP submission
// session for one mailbox.
package mailclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	imapclient "github.com/emersion/go-imap/client"
	"github.com/gologme/log"
	"github.com/vdavid/mailagent/internal/imap"
	"github.com/vdavid/mailagent/internal/models"
	"github.com/vdavid/mailagent/internal/smtpsender"
)

var (
	ErrConnection = errors.New("mail connection failed")
	ErrFetch      = errors.New("mail fetch failed")
	ErrSend       = errors.New("mail send failed")
)

// Mailbox is what the agent and the approval workflow need from a mail account.
type Mailbox interface {
	Connect(ctx context.Context) error
	ListUnseen(ctx context.Context, limit int) []string
	Fetch(ctx context.Context, id string) (*models.Message, error)
	Send(ctx context.Context, from, to, subject, body string) error
	Close() error
}

var _ Mailbox = (*Client)(nil)

// Options configures a Client.
type Options struct {
	ReadAddr string
	ReadTLS  bool
	Username string
	Password string
	Submit   smtpsender.Options
}

// Client is a Mailbox backed by real IMAP and SMTP sessions.
type Client struct {
	opts   Options
	logger *log.Logger
	sender *smtpsender.Sender

	mu   sync.Mutex
	imap *imapclient.Client
}

// New returns an unconnected Client.
func New(opts Options, logger *log.Logger) *Client {
	return &Client{
		opts:   opts,
		logger: logger,
		sender: smtpsender.New(opts.Submit),
	}
}

// Connect opens both sessions, closing any that are already open.
func (c *Client) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.logoutLocked()

	ic, err := imap.ConnectToIMAP(c.opts.ReadAddr, c.opts.ReadTLS)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}

	if err := imap.Login(ic, c.opts.Username, c.opts.Password); err != nil {
		_ = ic.Logout()
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}

	if err := imap.SelectInbox(ic); err != nil {
		_ = ic.Logout()
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}

	if err := c.sender.Connect(); err != nil {
		_ = ic.Logout()
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}

	c.imap = ic
	c.logger.Infof("Connected to mail servers as %s", c.opts.Username)
	return nil
}

// ListUnseen returns up to limit unseen message IDs, most recent last.
// Failures are logged and reported as an empty list.
func (c *Client) ListUnseen(ctx context.Context, limit int) []string {
	if ctx.Err() != nil {
		return []string{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.imap == nil {
		c.logger.Warnf("Cannot list unseen messages: not connected")
		return []string{}
	}

	uids, err := imap.SearchUnseen(c.imap, limit)
	if err != nil {
		c.logger.Errorf("Error reading emails: %v", err)
		return []string{}
	}

	ids := make([]string, 0, len(uids))
	for _, uid := range uids {
		ids = append(ids, strconv.FormatUint(uint64(uid), 10))
	}
	return ids
}

// Fetch downloads and parses the message and flags it seen on the server.
func (c *Client) Fetch(ctx context.Context, id string) (*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	uid, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid message id %q", ErrFetch, id)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.imap == nil {
		return nil, fmt.Errorf("%w: not connected", ErrFetch)
	}

	imapMsg, raw, err := imap.FetchFullMessage(c.imap, uint32(uid))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	msg, err := imap.ParseMessage(imapMsg, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	if err := imap.MarkSeen(c.imap, uint32(uid)); err != nil {
		c.logger.Warnf("Could not flag message %s as seen: %v", id, err)
	}

	return msg, nil
}

// Send delivers a plain-text message through the submission session, reconnecting
// it when needed.
func (c *Client) Send(ctx context.Context, from, to, subject, body string) error {
	if err := c.sender.Send(ctx, from, to, subject, body); err != nil {
		return fmt.Errorf("%w: %w", ErrSend, err)
	}
	return nil
}

// Close logs out of IMAP and quits SMTP. Both are attempted.
func (c *Client) Close() error {
	c.mu.Lock()
	var imapErr error
	if c.imap != nil {
		imapErr = c.imap.Logout()
		c.imap = nil
	}
	c.mu.Unlock()

	return errors.Join(imapErr, c.sender.Close())
}

func (c *Client) logoutLocked() {
	if c.imap != nil {
		_ = c.imap.Logout()
		c.imap = nil
	}
}
