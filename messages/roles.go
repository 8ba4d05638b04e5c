package messages

import (
	"fmt"
	"regexp"
	"strings"
)

// Default speaker labels. They double as display text and as the
// discriminator in transcript lines.
const (
	DefaultCustomerLabel = "Müşteri"
	DefaultAgentLabel    = "Temsilci"
)

// Roles formats and parses "<Label>: <text>" transcript lines
type Roles struct {
	Customer string
	Agent    string
	pattern  *regexp.Regexp
}

// NewRoles builds a codec for the given labels, empty labels fall back to defaults
func NewRoles(customer, agent string) *Roles {
	if customer == "" {
		customer = DefaultCustomerLabel
	}
	if agent == "" {
		agent = DefaultAgentLabel
	}
	pattern := regexp.MustCompile(fmt.Sprintf(`^(%s|%s):\s*(.+)$`,
		regexp.QuoteMeta(customer), regexp.QuoteMeta(agent)))
	return &Roles{Customer: customer, Agent: agent, pattern: pattern}
}

// DefaultRoles returns the codec for the default labels
func DefaultRoles() *Roles {
	return NewRoles(DefaultCustomerLabel, DefaultAgentLabel)
}

// Format prefixes text with a speaker label
func (r *Roles) Format(label, text string) string {
	return label + ": " + text
}

// Parse splits a transcript line into label and text.
// ok is false when the line does not start with a known label.
func (r *Roles) Parse(line string) (label, text string, ok bool) {
	m := r.pattern.FindStringSubmatch(line)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// Split separates a list of lines into customer and agent utterances,
// skipping lines that carry no known label.
func (r *Roles) Split(lines []string) (customer, agent []string) {
	for _, line := range lines {
		label, text, ok := r.Parse(line)
		if !ok {
			continue
		}
		if label == r.Customer {
			customer = append(customer, strings.TrimSpace(text))
		} else {
			agent = append(agent, strings.TrimSpace(text))
		}
	}
	return customer, agent
}
