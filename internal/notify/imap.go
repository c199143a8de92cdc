package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"time"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"
)

// IMAPOptions configures the IMAP append transport.
type IMAPOptions struct {
	Host               string
	Port               int
	Username           string
	Password           string
	Mailbox            string
	UseTLS             bool
	InsecureSkipVerify bool
}

// IMAPNotifier delivers notices by appending them to an IMAP mailbox, so a
// regular mail client can observe what the system "sent".
type IMAPNotifier struct {
	opts IMAPOptions
	log  *slog.Logger
}

// NewIMAPNotifier constructs an IMAPNotifier.
func NewIMAPNotifier(opts IMAPOptions, log *slog.Logger) (*IMAPNotifier, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("imap host is empty")
	}
	if opts.Port <= 0 {
		return nil, fmt.Errorf("imap port must be positive")
	}
	if opts.Mailbox == "" {
		opts.Mailbox = "INBOX"
	}
	return &IMAPNotifier{opts: opts, log: log}, nil
}

// Send connects, appends the notice as an RFC 822 message and disconnects.
// Each send uses its own connection.
func (n *IMAPNotifier) Send(ctx context.Context, notice Notice) error {
	raw, err := buildMessage(notice, time.Now())
	if err != nil {
		return fmt.Errorf("build message: %w", err)
	}

	client, err := n.dial(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	// Mailbox creation failing because it already exists is fine.
	_ = client.Create(n.opts.Mailbox, nil).Wait()

	cmd := client.Append(n.opts.Mailbox, int64(len(raw)), &imapv2.AppendOptions{Time: time.Now()})
	if err := writeFull(cmd, raw); err != nil {
		_ = cmd.Close()
		return fmt.Errorf("append write: %w", err)
	}
	if err := cmd.Close(); err != nil {
		return fmt.Errorf("append close: %w", err)
	}
	if _, err := cmd.Wait(); err != nil {
		return fmt.Errorf("append: %w", err)
	}

	if err := client.Logout().Wait(); err != nil {
		n.log.Warn("imap logout failed", "error", err)
	}
	n.log.Info("notice appended", "to", notice.To, "mailbox", n.opts.Mailbox)
	return nil
}

func (n *IMAPNotifier) dial(ctx context.Context) (*imapclient.Client, error) {
	address := net.JoinHostPort(n.opts.Host, strconv.Itoa(n.opts.Port))
	options := &imapclient.Options{}

	var (
		client *imapclient.Client
		err    error
	)
	if n.opts.UseTLS {
		options.TLSConfig = &tls.Config{
			ServerName:         n.opts.Host,
			InsecureSkipVerify: n.opts.InsecureSkipVerify,
		}
		client, err = imapclient.DialTLS(address, options)
	} else {
		client, err = imapclient.DialInsecure(address, options)
	}
	if err != nil {
		return nil, fmt.Errorf("dial imap %s: %w", address, err)
	}

	stopClose := context.AfterFunc(ctx, func() {
		_ = client.Close()
	})
	defer stopClose()

	if err := client.Login(n.opts.Username, n.opts.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("imap login failed: %w", err)
	}
	return client, nil
}

func buildMessage(notice Notice, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	var header mail.Header
	header.SetDate(now)
	header.SetAddressList("From", []*mail.Address{{Address: notice.From}})
	header.SetAddressList("To", []*mail.Address{{Address: notice.To}})
	header.SetSubject(notice.Subject)

	body, err := mail.CreateSingleInlineWriter(&buf, header)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(body, notice.Body); err != nil {
		_ = body.Close()
		return nil, err
	}
	if err := body.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeFull(w io.Writer, data []byte) error {
	for len(data) > 0 {
		n, err := w.Write(data)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("wrote 0 bytes")
		}
		data = data[n:]
	}
	return nil
}
