package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-imap/client"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailintake/interfaces"
	"github.com/customeros/mailintake/internal/logger"
	"github.com/customeros/mailintake/internal/models"
	"github.com/customeros/mailintake/internal/tracing"
)

const defaultDialTimeout = 30 * time.Second

// Dialer opens one authenticated IMAP session per mailbox run.
type Dialer struct {
	dialTimeout time.Duration
	log         logger.Logger
}

func NewDialer(dialTimeout time.Duration, log logger.Logger) *Dialer {
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}
	return &Dialer{dialTimeout: dialTimeout, log: log}
}

func (d *Dialer) Dial(ctx context.Context, mailbox *models.Mailbox) (interfaces.MailboxSession, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Dialer.Dial")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("server", mailbox.Host)
	span.SetTag("port", mailbox.Port)
	span.SetTag("tls", mailbox.TLS)
	span.SetTag("starttls", mailbox.StartTLS)

	serverAddr := mailbox.Address()

	dialer := &net.Dialer{
		Timeout:   d.dialTimeout,
		KeepAlive: 30 * time.Second,
	}
	tlsConfig := &tls.Config{
		ServerName:         mailbox.Host,
		InsecureSkipVerify: mailbox.InsecureSkipVerify,
	}

	var c *client.Client
	var err error
	if mailbox.TLS {
		c, err = client.DialWithDialerTLS(dialer, serverAddr, tlsConfig)
	} else {
		c, err = client.DialWithDialer(dialer, serverAddr)
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to connect to %s: %w", serverAddr, err)
	}

	// every command below is bounded, a stalled server must not hang the run
	c.Timeout = d.dialTimeout

	if mailbox.StartTLS && !mailbox.TLS {
		if err := c.StartTLS(tlsConfig); err != nil {
			_ = c.Logout()
			tracing.TraceErr(span, err)
			return nil, fmt.Errorf("failed to start tls with %s: %w", serverAddr, err)
		}
	}

	caps, err := c.Capability()
	if err != nil {
		_ = c.Logout()
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to get capabilities: %w", err)
	}
	span.SetTag("server.capabilities", fmt.Sprintf("%v", caps))

	loginSpan := opentracing.StartSpan("Dialer.login", opentracing.ChildOf(span.Context()))
	loginSpan.SetTag("username", mailbox.Username)
	if err := c.Login(mailbox.Username, mailbox.Password); err != nil {
		_ = c.Logout()
		tracing.TraceErr(loginSpan, err)
		loginSpan.Finish()
		return nil, fmt.Errorf("failed to login as %s: %w", mailbox.Username, err)
	}
	loginSpan.Finish()

	d.log.Debugf("[%s] connected and logged in to %s", mailbox.Name, serverAddr)
	return &session{client: c, mailbox: mailbox.Name, log: d.log}, nil
}
