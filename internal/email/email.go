package email

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
)

var (
	// ErrInvalidAddress indicates the address failed validation.
	ErrInvalidAddress = errors.New("invalid email address")
	// ErrNoRecipients indicates a task without any recipient.
	ErrNoRecipients = errors.New("at least one recipient is required")
	// ErrEmptySubject indicates a task with a blank subject.
	ErrEmptySubject = errors.New("subject must not be empty")
	// ErrEmptyBody indicates a task with a blank body.
	ErrEmptyBody = errors.New("body must not be empty")
)

// NormalizeAddress validates a bare address and returns it without display
// name or surrounding whitespace. Input like "Jane <jane@example.com>" is
// rejected: recipients are plain addresses.
func NormalizeAddress(addr string) (string, error) {
	if strings.ContainsAny(addr, "\r\n") {
		return "", fmt.Errorf("%w: unexpected newline", ErrInvalidAddress)
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", fmt.Errorf("%w: empty address", ErrInvalidAddress)
	}

	parsed, err := mail.ParseAddress(addr)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if parsed.Name != "" || parsed.Address != addr {
		return "", fmt.Errorf("%w: %q is not a bare address", ErrInvalidAddress, addr)
	}

	at := strings.LastIndex(parsed.Address, "@")
	domain := parsed.Address[at+1:]
	if !strings.Contains(domain, ".") {
		return "", fmt.Errorf("%w: domain %q has no dot", ErrInvalidAddress, domain)
	}

	return parsed.Address, nil
}
