package imap

import (
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-imap/client"
)

// DialTimeout bounds the TCP (and TLS) handshake with the IMAP server.
const DialTimeout = 5 * time.Second

// ConnectToIMAP connects to the IMAP server with a 5-second timeout.
// useTLS: true for production (implicit TLS), false for tests and local servers.
func ConnectToIMAP(server string, useTLS bool) (*client.Client, error) {
	dialer := &net.Dialer{
		Timeout: DialTimeout,
	}

	if useTLS {
		host, _, err := net.SplitHostPort(server)
		if err != nil {
			host = server
		}
		c, err := client.DialWithDialerTLS(dialer, server, &tls.Config{ServerName: host})
		if err != nil {
			return nil, fmt.Errorf("failed to dial with TLS: %w", err)
		}
		return c, nil
	}

	c, err := client.DialWithDialer(dialer, server)
	if err != nil {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}

	return c, nil
}

// Login authenticates with the IMAP server.
func Login(c *client.Client, username, password string) error {
	if err := c.Login(username, password); err != nil {
		return fmt.Errorf("failed to authenticate: %w", err)
	}

	return nil
}

// SelectInbox opens INBOX read-write so fetched messages can be flagged as seen.
func SelectInbox(c *client.Client) error {
	if _, err := c.Select("INBOX", false); err != nil {
		return fmt.Errorf("failed to select INBOX: %w", err)
	}

	return nil
}
