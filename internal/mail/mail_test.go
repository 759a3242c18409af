package mail

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMessage() Message {
	return Message{
		From:    "tasks@task_manager.org",
		To:      []string{"alice@example.com"},
		Subject: "You have 1 Pending and 0 in progress tasks",
		Body:    "Hey there alice\nHere is your daily task summary:\n",
	}
}

func TestMessageValidate(t *testing.T) {
	assert.NoError(t, testMessage().Validate())

	named := testMessage()
	named.From = "Task Manager <tasks@example.org>"
	assert.NoError(t, named.Validate())

	noTo := testMessage()
	noTo.To = nil
	assert.ErrorIs(t, noTo.Validate(), ErrNoRecipients)

	badTo := testMessage()
	badTo.To = []string{"nope"}
	assert.Error(t, badTo.Validate())
}

func TestMessageBuildWrapsLongLines(t *testing.T) {
	m := testMessage()
	m.Body = "Hey there alice\n -> " + strings.Repeat("x", 2000) + "\n"

	msg, err := m.build(time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	var buf bytes.Buffer
	_, err = msg.WriteTo(&buf)
	require.NoError(t, err)
	raw := buf.String()

	assert.Contains(t, raw, "Content-Transfer-Encoding: quoted-printable")
	assert.Contains(t, raw, "Subject: You have 1 Pending and 0 in progress tasks")
	assert.Contains(t, raw, "Hey there alice")
	for _, line := range strings.Split(raw, "\r\n") {
		assert.LessOrEqual(t, len(line), 998)
	}
}

func TestLogMailer(t *testing.T) {
	var buf bytes.Buffer
	m := LogMailer{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	require.NoError(t, m.Send(context.Background(), testMessage()))
	assert.Contains(t, buf.String(), "alice@example.com")

	bad := testMessage()
	bad.To = nil
	assert.Error(t, m.Send(context.Background(), bad))
}

type smtpSession struct {
	envelope chan string
	data     chan string
}

// smtpStub accepts a single plain SMTP session, recording envelope commands
// and the DATA payload. Addresses that are not bare <addr-spec> are refused.
func smtpStub(t *testing.T) (string, *smtpSession) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	session := &smtpSession{envelope: make(chan string, 8), data: make(chan string, 1)}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		reply := func(s string) { fmt.Fprintf(conn, "%s\r\n", s) }

		reply("220 stub ready")
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimSpace(line)
			cmd := strings.ToUpper(line)
			switch {
			case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
				reply("250 stub")
			case strings.HasPrefix(cmd, "MAIL"), strings.HasPrefix(cmd, "RCPT"):
				session.envelope <- line
				addr := line[strings.Index(line, ":")+1:]
				if strings.Count(addr, "<") != 1 || strings.Contains(addr, " ") {
					reply("501 bad address syntax")
					continue
				}
				reply("250 ok")
			case cmd == "NOOP", cmd == "RSET":
				reply("250 ok")
			case cmd == "DATA":
				reply("354 go ahead")
				var body strings.Builder
				for {
					l, err := r.ReadString('\n')
					if err != nil {
						return
					}
					if l == ".\r\n" {
						break
					}
					body.WriteString(l)
				}
				session.data <- body.String()
				reply("250 queued")
			case cmd == "QUIT":
				reply("221 bye")
				return
			default:
				reply("502 unsupported")
			}
		}
	}()
	return ln.Addr().String(), session
}

func TestSMTPMailerSend(t *testing.T) {
	addr, session := smtpStub(t)
	m, err := NewSMTPMailer(addr, "", "")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Send(ctx, testMessage()))

	select {
	case got := <-session.data:
		assert.Contains(t, got, "Subject: You have 1 Pending and 0 in progress tasks")
		assert.Contains(t, got, "Hey there alice")
	case <-ctx.Done():
		t.Fatal("no message received")
	}
}

func TestSMTPMailerEnvelopeUsesBareAddress(t *testing.T) {
	addr, session := smtpStub(t)
	m, err := NewSMTPMailer(addr, "", "")
	require.NoError(t, err)

	msg := testMessage()
	msg.From = "Task Manager <tasks@example.org>"
	msg.To = []string{"Alice Smith <alice@example.com>"}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Send(ctx, msg))

	assert.Equal(t, "MAIL FROM:<tasks@example.org>", <-session.envelope)
	assert.Equal(t, "RCPT TO:<alice@example.com>", <-session.envelope)
	got := <-session.data
	assert.Contains(t, got, "<tasks@example.org>")
	assert.Contains(t, got, "Task Manager")
}

func TestNewSMTPMailerRejectsBadAddr(t *testing.T) {
	_, err := NewSMTPMailer("no-port", "", "")
	assert.Error(t, err)
	_, err = NewSMTPMailer("smtp.example.org:abc", "", "")
	assert.Error(t, err)
}
