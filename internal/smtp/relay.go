// Copyright (C) 2020  Lukas Dietrich <lukas@lukasdietrich.com>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package smtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/gomail.v2"

	"github.com/lukasdietrich/bulkmail/internal/models"
)

const fallbackMessageIDDomain = "bulkmail.localhost"

func init() {
	viper.SetDefault("relay.host", "smtp.gmail.com")
	viper.SetDefault("relay.port", 587)
	viper.SetDefault("relay.timeout", "30s")
	viper.SetDefault("relay.dataTimeout", "10m")
	viper.SetDefault("relay.insecureSkipVerify", false)
}

// Options configure the connection to the outbound relay.
type Options struct {
	Host               string
	Port               int
	Timeout            time.Duration
	DataTimeout        time.Duration
	InsecureSkipVerify bool
}

// OptionsFromViper reads the relay options.
//
// `relay.host` and `relay.port` address the submission server. Port 465 uses
// implicit tls, every other port upgrades with STARTTLS when offered.
// `relay.timeout` limits dialing, the greeting, STARTTLS and authentication.
// `relay.dataTimeout` limits the transfer of a message including the final
// reply. Zero disables the limit.
// `relay.insecureSkipVerify` disables certificate checks.
func OptionsFromViper() Options {
	return Options{
		Host:               viper.GetString("relay.host"),
		Port:               viper.GetInt("relay.port"),
		Timeout:            viper.GetDuration("relay.timeout"),
		DataTimeout:        viper.GetDuration("relay.dataTimeout"),
		InsecureSkipVerify: viper.GetBool("relay.insecureSkipVerify"),
	}
}

// Relay submits mails to an authenticated smtp server on behalf of a sender.
type Relay interface {
	// Verify dials the relay and authenticates using the credentials.
	Verify(ctx context.Context, creds models.Credentials) error
	// Send submits a single message in its own session. The context only
	// applies until the relay accepted the credentials. A transfer that has
	// started is never abandoned, so a nil error means the relay accepted
	// the message.
	Send(ctx context.Context, creds models.Credentials, msg models.Message) error
}

// NewRelay creates a Relay for an smtp submission server.
func NewRelay(opts Options) Relay {
	return &submissionRelay{opts: opts}
}

type submissionRelay struct {
	opts Options
}

func (r *submissionRelay) tlsConfig() *tls.Config {
	return &tls.Config{
		ServerName:         r.opts.Host,
		InsecureSkipVerify: r.opts.InsecureSkipVerify,
	}
}

// dial connects and authenticates. Canceling ctx or exceeding `relay.timeout`
// closes the connection, which is the only way to interrupt net/smtp.
func (r *submissionRelay) dial(ctx context.Context, creds models.Credentials) (*smtp.Client, net.Conn, error) {
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(r.opts.Host, strconv.Itoa(r.opts.Port)))
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}

		return nil, nil, err
	}

	stop := context.AfterFunc(ctx, func() {
		conn.Close() // nolint:errcheck
	})

	client, err := r.handshake(conn, creds)

	if !stop() {
		if client != nil {
			client.Close() // nolint:errcheck
		}

		return nil, nil, ctx.Err()
	}

	if err != nil {
		conn.Close() // nolint:errcheck
		return nil, nil, err
	}

	return client, conn, nil
}

func (r *submissionRelay) handshake(conn net.Conn, creds models.Credentials) (*smtp.Client, error) {
	implicitTLS := r.opts.Port == 465
	if implicitTLS {
		conn = tls.Client(conn, r.tlsConfig())
	}

	client, err := smtp.NewClient(conn, r.opts.Host)
	if err != nil {
		return nil, err
	}

	if !implicitTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(r.tlsConfig()); err != nil {
				client.Close() // nolint:errcheck
				return nil, err
			}
		}
	}

	if ok, mechanisms := client.Extension("AUTH"); ok {
		if err := client.Auth(chooseAuth(mechanisms, creds, r.opts.Host)); err != nil {
			client.Close() // nolint:errcheck
			return nil, err
		}
	}

	return client, nil
}

func (r *submissionRelay) Verify(ctx context.Context, creds models.Credentials) error {
	client, _, err := r.dial(ctx, creds)
	if err != nil {
		return err
	}

	defer client.Close() // nolint:errcheck
	return client.Quit()
}

func (r *submissionRelay) Send(ctx context.Context, creds models.Credentials, msg models.Message) error {
	from, err := envelopeAddress(creds.Account)
	if err != nil {
		return fmt.Errorf("invalid sender %q: %w", creds.Account, err)
	}

	to, err := envelopeAddress(msg.To)
	if err != nil {
		return fmt.Errorf("invalid recipient %q: %w", msg.To, err)
	}

	client, conn, err := r.dial(ctx, creds)
	if err != nil {
		return err
	}

	defer client.Close() // nolint:errcheck

	var deadline time.Time
	if r.opts.DataTimeout > 0 {
		deadline = time.Now().Add(r.opts.DataTimeout)
	}

	if err := conn.SetDeadline(deadline); err != nil {
		return err
	}

	if err := transfer(client, from, to, buildMessage(creds, msg)); err != nil {
		return err
	}

	// The message is accepted at this point, a failing QUIT does not change that.
	client.Quit() // nolint:errcheck
	return nil
}

func transfer(client *smtp.Client, from, to string, m *gomail.Message) error {
	if err := client.Mail(from); err != nil {
		return err
	}

	if err := client.Rcpt(to); err != nil {
		return err
	}

	w, err := client.Data()
	if err != nil {
		return err
	}

	if _, err := m.WriteTo(w); err != nil {
		w.Close() // nolint:errcheck
		return err
	}

	// Close waits for the reply to the end of data.
	return w.Close()
}

func envelopeAddress(raw string) (string, error) {
	addr, err := models.Parse(raw)
	if err != nil {
		return "", err
	}

	return addr.ASCII()
}

func buildMessage(creds models.Credentials, msg models.Message) *gomail.Message {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", creds.Account, creds.Name)
	m.SetHeader("To", msg.To)

	if msg.ReplyTo != "" {
		m.SetHeader("Reply-To", msg.ReplyTo)
	}

	if msg.ID != "" {
		m.SetHeader("Message-ID", messageID(msg.ID, creds.Account))
	}

	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)

	return m
}

func messageID(id, account string) string {
	domain := fallbackMessageIDDomain

	if addr, err := models.Parse(account); err == nil {
		if ascii, err := models.DomainToASCII(addr.Domain()); err == nil && ascii != "" {
			domain = ascii
		}
	}

	return fmt.Sprintf("<%s@%s>", id, domain)
}
