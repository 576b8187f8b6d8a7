package delivery

import (
	"bytes"
	"fmt"
	"time"

	"gopkg.in/gomail.v2"
)

// renderMessage builds the RFC 5322 text/plain message sent to every recipient.
func renderMessage(from string, to []string, subject, body string, at time.Time) ([]byte, error) {
	m := gomail.NewMessage(gomail.SetCharset("UTF-8"))
	m.SetHeader("From", from)
	m.SetHeader("To", to...)
	m.SetHeader("Subject", subject)
	m.SetDateHeader("Date", at)
	m.SetBody("text/plain", body)

	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("render message: %w", err)
	}
	return buf.Bytes(), nil
}
