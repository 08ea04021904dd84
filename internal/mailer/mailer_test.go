package mailer_test

import (
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/esignhq/esign/internal/mailer"
)

// TestSendDeliversToLocalListener exercises the plaintext (non-TLS) send
// path against an in-process TCP listener speaking just enough SMTP for
// net/smtp.SendMail to consider the message delivered.
func TestSendDeliversToLocalListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	received := make(chan string, 1)
	go serveOneSMTPConn(t, ln, received)

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)

	m := mailer.New(mailer.Config{
		Server: host,
		Port:   mustAtoi(t, portStr),
		From:   "sender@example.com",
	})

	err = m.Send("recipient@example.com", "hello", "body text")
	require.NoError(t, err)

	select {
	case body := <-received:
		require.Contains(t, body, "Subject: hello")
		require.Contains(t, body, "body text")
	default:
		t.Fatal("server did not receive a message")
	}
}

func mustAtoi(t *testing.T, s string) int {
	t.Helper()
	n := 0
	for _, r := range s {
		require.True(t, r >= '0' && r <= '9')
		n = n*10 + int(r-'0')
	}
	return n
}

// serveOneSMTPConn is a minimal SMTP server sufficient for net/smtp's
// client handshake: greet, accept EHLO/MAIL/RCPT/DATA, echo the message
// body back on the received channel, then QUIT.
func serveOneSMTPConn(t *testing.T, ln net.Listener, received chan<- string) {
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	write := func(s string) { _, _ = conn.Write([]byte(s)) }
	write("220 localhost ESMTP\r\n")

	buf := make([]byte, 4096)
	var body strings.Builder
	inData := false
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		chunk := string(buf[:n])
		if inData {
			body.WriteString(chunk)
			if strings.Contains(chunk, "\r\n.\r\n") {
				write("250 OK\r\n")
				received <- body.String()
				inData = false
			}
			continue
		}
		switch {
		case strings.HasPrefix(chunk, "EHLO"), strings.HasPrefix(chunk, "HELO"):
			write("250 localhost\r\n")
		case strings.HasPrefix(chunk, "MAIL"):
			write("250 OK\r\n")
		case strings.HasPrefix(chunk, "RCPT"):
			write("250 OK\r\n")
		case strings.HasPrefix(chunk, "DATA"):
			write("354 End data with <CR><LF>.<CR><LF>\r\n")
			inData = true
		case strings.HasPrefix(chunk, "QUIT"):
			write("221 Bye\r\n")
			return
		default:
			write("250 OK\r\n")
		}
	}
}
