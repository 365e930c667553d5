// test-server runs in-memory IMAP and SMTP servers seeded with sample mail, so the
// agent and the bot can be tried without a real mailbox.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gologme/log"
	"github.com/vdavid/mailagent/internal/logging"
	"github.com/vdavid/mailagent/internal/testutil"
)

type seedMessage struct {
	from    string
	subject string
	body    string
}

var seedMessages = []seedMessage{
	{"Sam Lee <sam@example.com>", "Quick coffee?", "Are you free for coffee on Thursday afternoon?"},
	{"ops@example.com", "URGENT: server down", "The production server is down, please respond ASAP."},
	{"Priya <priya@example.com>", "Project update", "Could you send the latest status on the project deadline?"},
	{"recruiter@example.com", "Partnership proposal", "We would like to discuss a business partnership with your company."},
	{"friend@example.com", "Hello", "Just checking in."},
}

func main() {
	imapAddr := flag.String("imap", "127.0.0.1:1143", "IMAP listen address")
	smtpAddr := flag.String("smtp", "127.0.0.1:1025", "SMTP listen address")
	withJournal := flag.Bool("journal", false, "also start a Postgres container for the reply journal")
	flag.Parse()

	logger, closer, err := logging.New(logging.Options{Level: "info", Component: "test-server"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close() //nolint:errcheck // stdout only

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, logger, *imapAddr, *smtpAddr, *withJournal); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, logger *log.Logger, imapAddr, smtpAddr string, withJournal bool) error {
	imapServer, err := testutil.StartIMAPServer(imapAddr)
	if err != nil {
		return fmt.Errorf("failed to start IMAP server: %w", err)
	}
	defer imapServer.Close()

	smtpServer, err := testutil.StartSMTPServer(smtpAddr)
	if err != nil {
		return fmt.Errorf("failed to start SMTP server: %w", err)
	}
	defer smtpServer.Close()

	for _, m := range seedMessages {
		if _, err := imapServer.Append(testutil.TestMessage{From: m.from, Subject: m.subject, Body: m.body}); err != nil {
			return fmt.Errorf("failed to seed %q: %w", m.subject, err)
		}
	}
	logger.Infof("Seeded %d unread messages", len(seedMessages))

	var databaseURL, encryptionKey string
	if withJournal {
		logger.Infof("Starting Postgres for the reply journal...")
		pg, err := testutil.StartPostgres(ctx)
		if err != nil {
			return err
		}
		defer pg.Terminate(context.Background())

		databaseURL = pg.URL
		encryptionKey = testutil.TestEncryptionKey()
	}

	fmt.Print(sampleConfig(imapServer, smtpServer, databaseURL, encryptionKey))
	logger.Infof("Ready. Press Ctrl+C to stop.")

	reported := 0
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Infof("Shutting down")
			return nil
		case <-ticker.C:
			received := smtpServer.Messages()
			for _, msg := range received[reported:] {
				logger.Infof("Received message from %s to %v (%d bytes)", msg.From, msg.To, len(msg.Data))
			}
			reported = len(received)
		}
	}
}

// sampleConfig renders the config file that points the agent at these servers.
func sampleConfig(imapServer *testutil.TestIMAPServer, smtpServer *testutil.TestSMTPServer, databaseURL, encryptionKey string) string {
	imapHost, imapPort := splitAddr(imapServer.Address)
	smtpHost, smtpPort := splitAddr(smtpServer.Address)

	cfg := fmt.Sprintf(`# config.yaml for the test servers
mailbox:
  address: %s@example.org
  username: %s
  credential: %s
  read_host: %s
  read_port: %d
  read_tls: false
  submit_host: %s
  submit_port: %d
  submit_security: none
agent:
  reply_delay: 1
  check_interval: 10
`, imapServer.Username(), imapServer.Username(), imapServer.Password(), imapHost, imapPort, smtpHost, smtpPort)

	if databaseURL != "" {
		cfg += fmt.Sprintf("journal:\n  database_url: %s\n  encryption_key: %s\n", databaseURL, encryptionKey)
	}
	return cfg
}

func splitAddr(addr string) (string, int) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 0
	}
	p, _ := strconv.Atoi(port)
	return host, p
}
