package email

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Task is one request to deliver a message to a set of recipients.
// A Task is not modified after NewTask returns it.
type Task struct {
	ID          string
	Recipients  []string
	Subject     string
	Body        string
	MessageType string
}

// NewTask validates the fields and returns a Task with a fresh ID.
// Recipient order is preserved.
func NewTask(recipients []string, subject, body, messageType string) (Task, error) {
	task := Task{
		ID:          uuid.NewString(),
		Recipients:  make([]string, 0, len(recipients)),
		Subject:     subject,
		Body:        body,
		MessageType: messageType,
	}
	for i, r := range recipients {
		addr, err := NormalizeAddress(r)
		if err != nil {
			return Task{}, fmt.Errorf("recipients[%d]: %w", i, err)
		}
		task.Recipients = append(task.Recipients, addr)
	}
	if err := task.Validate(); err != nil {
		return Task{}, err
	}
	return task, nil
}

// Validate checks the invariants every deliverable task must hold.
func (t Task) Validate() error {
	if len(t.Recipients) == 0 {
		return ErrNoRecipients
	}
	if strings.TrimSpace(t.Subject) == "" {
		return ErrEmptySubject
	}
	if strings.TrimSpace(t.Body) == "" {
		return ErrEmptyBody
	}
	return nil
}
