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
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukasdietrich/bulkmail/internal/models"
)

func TestOptionsFromViper(t *testing.T) {
	expected := Options{
		Host:        "smtp.gmail.com",
		Port:        587,
		Timeout:     30 * time.Second,
		DataTimeout: 10 * time.Minute,
	}
	assert.Equal(t, expected, OptionsFromViper())

	viper.Set("relay.insecureSkipVerify", true)
	defer viper.Set("relay.insecureSkipVerify", false)

	assert.True(t, OptionsFromViper().InsecureSkipVerify)
}

func TestClassify(t *testing.T) {
	for err, expected := range map[error]ErrorClass{
		&textproto.Error{Code: 550, Msg: "mailbox unavailable"}:                         ClassPermanent,
		fmt.Errorf("send: %w", &textproto.Error{Code: 535, Msg: "bad credentials"}):     ClassPermanent,
		&textproto.Error{Code: 421, Msg: "try again later"}:                             ClassTransient,
		fmt.Errorf("send: %w", &textproto.Error{Code: 452, Msg: "too many recipients"}): ClassTransient,
		&textproto.Error{Code: 354, Msg: "go ahead"}:                                     ClassOther,
		fmt.Errorf("relay: %w", context.DeadlineExceeded):                               ClassTimeout,
		fmt.Errorf("read: %w", os.ErrDeadlineExceeded):                                  ClassTimeout,
		errors.New("connection refused"):                                                ClassOther,
	} {
		assert.Equal(t, expected, Classify(err), "error %v", err)
	}
}

func TestBuildMessage(t *testing.T) {
	creds := models.Credentials{
		Name:     "Ann",
		Account:  "ann@example.com",
		Password: "secret",
	}

	msg := models.Message{
		ID:      "4e1b2f",
		To:      "bob@example.org",
		ReplyTo: "ann@example.com",
		Subject: "Hello",
		Body:    "Hello world",
	}

	var buf bytes.Buffer
	_, err := buildMessage(creds, msg).WriteTo(&buf)
	require.NoError(t, err)

	raw := buf.String()
	assert.Contains(t, raw, "From: \"Ann\" <ann@example.com>\r\n")
	assert.Contains(t, raw, "To: bob@example.org\r\n")
	assert.Contains(t, raw, "Reply-To: ann@example.com\r\n")
	assert.Contains(t, raw, "Message-ID: <4e1b2f@example.com>\r\n")
	assert.Contains(t, raw, "Subject: Hello\r\n")
	assert.Contains(t, raw, "Content-Type: text/plain")
	assert.Contains(t, raw, "Hello world")
	assert.NotContains(t, raw, "secret")
}

func TestMessageID(t *testing.T) {
	assert.Equal(t, "<abc@example.com>", messageID("abc", "ann@example.com"))
	assert.Equal(t, "<abc@xn--bcher-kva.example>", messageID("abc", "ann@bücher.example"))
	assert.Equal(t, "<abc@bulkmail.localhost>", messageID("abc", "not an address"))
}

func closedAddr(t *testing.T) (string, int) {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := l.Addr().(*net.TCPAddr)
	require.NoError(t, l.Close())

	return addr.IP.String(), addr.Port
}

func TestVerifyConnectionRefused(t *testing.T) {
	host, port := closedAddr(t)
	relay := NewRelay(Options{Host: host, Port: port, Timeout: 5 * time.Second})

	err := relay.Verify(context.Background(), models.Credentials{Account: "ann@example.com"})
	require.Error(t, err)
	assert.Equal(t, ClassOther, Classify(err))
}

func TestVerifyTimeout(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		if conn, err := l.Accept(); err == nil {
			accepted <- conn
		}
	}()

	addr := l.Addr().(*net.TCPAddr)
	relay := NewRelay(Options{Host: addr.IP.String(), Port: addr.Port, Timeout: 50 * time.Millisecond})

	err = relay.Verify(context.Background(), models.Credentials{Account: "ann@example.com"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, ClassTimeout, Classify(err))

	select {
	case conn := <-accepted:
		conn.Close()
	case <-time.After(time.Second):
	}
}

func TestSendInvalidRecipient(t *testing.T) {
	relay := NewRelay(Options{Host: "127.0.0.1", Port: 1})

	err := relay.Send(context.Background(),
		models.Credentials{Account: "ann@example.com"},
		models.Message{To: "nobody"})
	assert.ErrorIs(t, err, models.ErrInvalidAddressFormat)
}

// fakeServer is a single session smtp relay. It acknowledges the end of
// data after dataDelay and reports every accepted message.
type fakeServer struct {
	listener  net.Listener
	authReply string
	dataDelay time.Duration
	onData    func()
	accepted  chan string
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	return &fakeServer{
		listener:  l,
		authReply: "235 2.7.0 Authentication successful",
		accepted:  make(chan string, 1),
	}
}

func (f *fakeServer) options() Options {
	addr := f.listener.Addr().(*net.TCPAddr)
	return Options{Host: addr.IP.String(), Port: addr.Port, Timeout: time.Second}
}

func (f *fakeServer) serve() {
	conn, err := f.listener.Accept()
	if err != nil {
		return
	}

	defer conn.Close()

	text := textproto.NewConn(conn)
	text.PrintfLine("220 fake ESMTP") // nolint:errcheck

	for {
		line, err := text.ReadLine()
		if err != nil {
			return
		}

		switch verb := strings.ToUpper(strings.Fields(line)[0]); verb {
		case "EHLO":
			text.PrintfLine("250-fake\r\n250 AUTH PLAIN") // nolint:errcheck
		case "AUTH":
			text.PrintfLine("%s", f.authReply) // nolint:errcheck
		case "MAIL", "RCPT":
			text.PrintfLine("250 2.1.0 Ok") // nolint:errcheck
		case "DATA":
			text.PrintfLine("354 End data with <CR><LF>.<CR><LF>") // nolint:errcheck

			data, err := text.ReadDotBytes()
			if err != nil {
				return
			}

			if f.onData != nil {
				f.onData()
			}

			time.Sleep(f.dataDelay)

			if err := text.PrintfLine("250 2.0.0 Ok: queued"); err == nil {
				f.accepted <- string(data)
			}
		case "QUIT":
			text.PrintfLine("221 2.0.0 Bye") // nolint:errcheck
			return
		default:
			text.PrintfLine("502 5.5.2 Error: command not recognized") // nolint:errcheck
		}
	}
}

func (f *fakeServer) message(t *testing.T) string {
	t.Helper()

	select {
	case data := <-f.accepted:
		return data
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not accept a message")
		return ""
	}
}

var (
	testCreds   = models.Credentials{Account: "ann@example.com", Password: "secret"}
	testMessage = models.Message{ID: "1", To: "bob@example.org", Subject: "Hello", Body: "Hello world"}
)

func TestVerifyAuthenticates(t *testing.T) {
	server := newFakeServer(t)
	go server.serve()

	assert.NoError(t, NewRelay(server.options()).Verify(context.Background(), testCreds))
}

func TestVerifyWrongCredentials(t *testing.T) {
	server := newFakeServer(t)
	server.authReply = "535 5.7.8 Authentication credentials invalid"
	go server.serve()

	err := NewRelay(server.options()).Verify(context.Background(), testCreds)
	require.Error(t, err)
	assert.Equal(t, ClassPermanent, Classify(err))
}

func TestSendWaitsForSlowAcceptance(t *testing.T) {
	server := newFakeServer(t)
	server.dataDelay = 300 * time.Millisecond
	go server.serve()

	opts := server.options()
	opts.Timeout = 100 * time.Millisecond

	require.NoError(t, NewRelay(opts).Send(context.Background(), testCreds, testMessage))
	assert.Contains(t, server.message(t), "Subject: Hello")
}

func TestSendIgnoresCancelDuringTransfer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := newFakeServer(t)
	server.dataDelay = 100 * time.Millisecond
	server.onData = cancel
	go server.serve()

	require.NoError(t, NewRelay(server.options()).Send(ctx, testCreds, testMessage))
	assert.Contains(t, server.message(t), "Hello world")
	assert.Error(t, ctx.Err())
}

func TestSendCanceledBeforeDial(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	server := newFakeServer(t)

	err := NewRelay(server.options()).Send(ctx, testCreds, testMessage)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSendDataTimeout(t *testing.T) {
	server := newFakeServer(t)
	server.dataDelay = 300 * time.Millisecond
	go server.serve()

	opts := server.options()
	opts.DataTimeout = 50 * time.Millisecond

	err := NewRelay(opts).Send(context.Background(), testCreds, testMessage)
	require.Error(t, err)
	assert.Equal(t, ClassTimeout, Classify(err))
}
