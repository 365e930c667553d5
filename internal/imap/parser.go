package imap

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/vdavid/mailagent/internal/models"
)

// ParseMessage converts a fetched IMAP message and its raw RFC 822 content to our
// Message model. Header values come from the raw content when it parses and from the
// envelope otherwise.
func ParseMessage(imapMsg *imap.Message, raw []byte) (*models.Message, error) {
	if imapMsg == nil {
		return nil, fmt.Errorf("imap message is nil")
	}

	msg := &models.Message{
		ID:         strconv.FormatUint(uint64(imapMsg.Uid), 10),
		ReceivedAt: imapMsg.InternalDate,
	}

	if imapMsg.Envelope != nil {
		msg.Subject = imapMsg.Envelope.Subject
		if len(imapMsg.Envelope.From) > 0 {
			msg.Sender = formatAddress(imapMsg.Envelope.From[0])
		}
		if !imapMsg.Envelope.Date.IsZero() {
			msg.ReceivedAt = imapMsg.Envelope.Date
		}
	}

	if len(raw) > 0 {
		if h, ok := readHeader(raw); ok {
			if subject, err := h.Subject(); err == nil && subject != "" {
				msg.Subject = subject
			}
			if from, err := h.Text("From"); err == nil && from != "" {
				msg.Sender = from
			}
		}
		msg.Body = ExtractBody(raw)
	}

	return msg, nil
}

func readHeader(raw []byte) (mail.Header, bool) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !tolerable(err) {
		return mail.Header{}, false
	}
	defer mr.Close()
	return mr.Header, true
}

// ExtractBody returns the readable text of a raw message, trimmed of surrounding
// whitespace. Multipart messages yield their first text/plain part that is not an
// attachment, or "" when there is none. Single-part messages yield their decoded
// payload, or the undecoded payload when decoding fails.
func ExtractBody(raw []byte) string {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !tolerable(err) {
		return strings.TrimSpace(rawPayload(raw))
	}
	defer mr.Close()

	mediaType, _, _ := mr.Header.ContentType()
	if !strings.HasPrefix(mediaType, "multipart/") {
		part, err := mr.NextPart()
		if err != nil {
			return strings.TrimSpace(rawPayload(raw))
		}
		body, err := io.ReadAll(part.Body)
		if err != nil {
			return strings.TrimSpace(rawPayload(raw))
		}
		return strings.TrimSpace(string(body))
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return ""
		}
		if err != nil && !tolerable(err) {
			return ""
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		contentType, _, _ := h.ContentType()
		if contentType != "text/plain" {
			continue
		}
		if disposition, _, _ := h.ContentDisposition(); disposition == "attachment" {
			continue
		}

		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		return strings.TrimSpace(string(body))
	}
}

// tolerable reports errors after which go-message still returns a usable reader.
func tolerable(err error) bool {
	return message.IsUnknownCharset(err) || message.IsUnknownEncoding(err)
}

// rawPayload returns everything after the header block.
func rawPayload(raw []byte) string {
	for _, sep := range [][]byte{[]byte("\r\n\r\n"), []byte("\n\n")} {
		if idx := bytes.Index(raw, sep); idx >= 0 {
			return string(raw[idx+len(sep):])
		}
	}
	return ""
}

// formatAddress formats an IMAP address to a string.
func formatAddress(address *imap.Address) string {
	if address == nil {
		return ""
	}

	if address.MailboxName == "" && address.HostName == "" {
		return ""
	}

	if address.PersonalName != "" {
		return fmt.Sprintf("%s <%s@%s>", address.PersonalName, address.MailboxName, address.HostName)
	}

	return fmt.Sprintf("%s@%s", address.MailboxName, address.HostName)
}
