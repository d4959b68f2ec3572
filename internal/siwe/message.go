// Package siwe implements the Sign-In-With-Ethereum style challenge message:
// parsing and serialization of the fixed text template wallets sign, and
// verification of the resulting personal-message signatures.
package siwe

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Sentinel errors for message parsing.
var (
	ErrMalformedMessage = errors.New("malformed sign-in message")
	ErrMissingField     = errors.New("sign-in message missing required field")
)

const headerSuffix = " wants you to sign in with your Ethereum account:"

// minLines is the smallest well-formed message: header, address, blank,
// statement, blank, and the five required key-value lines.
const minLines = 8

var requiredKeys = []string{"URI", "Version", "Chain ID", "Nonce", "Issued At"}

// Message is the structured form of a sign-in message. Address keeps the
// exact casing the client sent; identity comparison downstream is
// case-insensitive, so checksum-cased and lowercase addresses both pass.
type Message struct {
	Domain    string
	Address   string
	Statement string
	URI       string
	Version   string
	ChainId   int64
	Nonce     string
	IssuedAt  string

	issuedAt time.Time
}

// IssuedAtTime returns the parsed Issued At timestamp.
func (m *Message) IssuedAtTime() time.Time {
	return m.issuedAt
}

// ParseMessage parses the wire template strictly. The address line is taken
// as claimed, not proven; proof comes from the signature over the raw text.
func ParseMessage(raw string) (*Message, error) {
	lines := strings.Split(raw, "\n")
	if len(lines) < minLines {
		return nil, fmt.Errorf("%w: expected at least %d lines, got %d", ErrMalformedMessage, minLines, len(lines))
	}

	domain := strings.TrimSuffix(lines[0], headerSuffix)
	if domain == lines[0] || domain == "" {
		return nil, fmt.Errorf("%w: bad header line", ErrMalformedMessage)
	}

	address := strings.TrimSpace(lines[1])
	if address == "" {
		return nil, fmt.Errorf("%w: empty address line", ErrMalformedMessage)
	}

	fields := make(map[string]string, len(requiredKeys))
	var statementLines []string
	for _, line := range lines[2:] {
		if line == "" {
			continue
		}
		if key, value, ok := cutKnownField(line); ok {
			fields[key] = value
			continue
		}
		statementLines = append(statementLines, line)
	}

	for _, key := range requiredKeys {
		if _, ok := fields[key]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingField, key)
		}
	}

	chainId, err := strconv.ParseInt(fields["Chain ID"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: chain id %q is not an integer", ErrMalformedMessage, fields["Chain ID"])
	}

	issuedAt, err := time.Parse(time.RFC3339, fields["Issued At"])
	if err != nil {
		return nil, fmt.Errorf("%w: issued at %q is not a timestamp", ErrMalformedMessage, fields["Issued At"])
	}

	return &Message{
		Domain:    domain,
		Address:   address,
		Statement: strings.Join(statementLines, "\n"),
		URI:       fields["URI"],
		Version:   fields["Version"],
		ChainId:   chainId,
		Nonce:     fields["Nonce"],
		IssuedAt:  fields["Issued At"],
		issuedAt:  issuedAt,
	}, nil
}

// cutKnownField splits "Key: value" lines, but only for the template's known
// keys so a statement containing a colon is never swallowed as a field.
func cutKnownField(line string) (string, string, bool) {
	for _, key := range requiredKeys {
		if rest, ok := strings.CutPrefix(line, key+": "); ok {
			return key, rest, true
		}
	}
	return "", "", false
}

// String serializes back to the exact wire template. Parsing the result
// yields a field-equal Message.
func (m *Message) String() string {
	return fmt.Sprintf("%s%s\n%s\n\n%s\n\nURI: %s\nVersion: %s\nChain ID: %d\nNonce: %s\nIssued At: %s",
		m.Domain, headerSuffix, m.Address, m.Statement,
		m.URI, m.Version, m.ChainId, m.Nonce, m.IssuedAt)
}
