package skills

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
)

// Messaging stages and delivers messages through WhatsApp's wa.me links.
// Prepare records the outgoing message; Send opens the link in the user's
// browser, which is as far as a voice assistant can take a third-party
// messenger without its API.
type Messaging struct {
	runner Runner
	log    *slog.Logger

	// contacts maps lowercase names to phone numbers in international
	// format, straight from the config file.
	contacts map[string]string

	mu      sync.Mutex
	pending map[string]string // contact (lowercase) → staged message
}

// NewMessaging builds the messaging skill around a contact book.
func NewMessaging(runner Runner, contacts map[string]string) *Messaging {
	normalized := make(map[string]string, len(contacts))
	for name, number := range contacts {
		normalized[strings.ToLower(strings.TrimSpace(name))] = number
	}
	return &Messaging{
		runner:   runner,
		log:      slog.Default().With("component", "skills.messaging"),
		contacts: normalized,
		pending:  make(map[string]string),
	}
}

// HasContact reports whether name resolves in the contact book.
func (m *Messaging) HasContact(name string) bool {
	_, ok := m.contacts[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// Prepare stages a message for contact and returns the confirmation
// question to speak.
func (m *Messaging) Prepare(_ context.Context, contact, message string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(contact))
	if _, ok := m.contacts[key]; !ok {
		return "", fmt.Errorf("skills: unknown contact %q", contact)
	}

	m.mu.Lock()
	m.pending[key] = message
	m.mu.Unlock()

	m.log.Info("message staged", "contact", key)
	return fmt.Sprintf("I have prepared the message to %s. Should I send it?", contact), nil
}

// Send delivers the previously prepared message to contact by opening the
// wa.me link.
func (m *Messaging) Send(ctx context.Context, contact string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(contact))
	number, ok := m.contacts[key]
	if !ok {
		return "", fmt.Errorf("skills: unknown contact %q", contact)
	}

	m.mu.Lock()
	message, staged := m.pending[key]
	delete(m.pending, key)
	m.mu.Unlock()
	if !staged {
		return "", fmt.Errorf("skills: no message prepared for %q", contact)
	}

	dest := waLink(number, message)
	if err := m.runner.Start(ctx, "xdg-open", dest); err != nil {
		return "", fmt.Errorf("skills: open messenger: %w", err)
	}

	m.log.Info("message sent", "contact", key)
	return fmt.Sprintf("The message has been sent to %s.", contact), nil
}

// waLink builds the click-to-chat URL. Numbers are stripped to digits; wa.me
// rejects plus signs and spaces.
func waLink(number, message string) string {
	var digits strings.Builder
	for _, r := range number {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	return "https://wa.me/" + digits.String() + "?text=" + url.QueryEscape(message)
}
