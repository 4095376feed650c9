// Package pairing issues and redeems single-use codes that bind a short,
// human-exchangeable string to a contact id.
package pairing

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"sync"
)

const (
	CodeLength = 8
	// Alphabet leaves out I, O, 0 and 1. Its 32 symbols divide 256 evenly,
	// so taking a random byte modulo 32 is unbiased.
	Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

var ErrCodeNotFound = errors.New("pairing code not found")

// Registry holds outstanding codes. It is safe for concurrent use.
type Registry struct {
	mu        sync.Mutex
	codes     map[string]string
	byContact map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		codes:     make(map[string]string),
		byContact: make(map[string]string),
	}
}

// Issue returns a fresh code for contactID. Any code previously issued for
// the same contact and not yet redeemed stops working.
func (r *Registry) Issue(contactID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var code string
	for {
		c, err := newCode()
		if err != nil {
			return "", err
		}
		if _, taken := r.codes[c]; !taken {
			code = c
			break
		}
	}

	if old, ok := r.byContact[contactID]; ok {
		delete(r.codes, old)
	}
	r.codes[code] = contactID
	r.byContact[contactID] = code
	return code, nil
}

// Redeem consumes code and returns the contact it was issued for. A code
// can be redeemed once; later attempts report false.
func (r *Registry) Redeem(code string) (string, bool) {
	code = Normalize(code)

	r.mu.Lock()
	defer r.mu.Unlock()

	contactID, ok := r.codes[code]
	if !ok {
		return "", false
	}
	delete(r.codes, code)
	delete(r.byContact, contactID)
	return contactID, true
}

// Pending returns the number of codes issued but not yet redeemed.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.codes)
}

// Normalize trims whitespace and upper-cases user input.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func newCode() (string, error) {
	buf := make([]byte, CodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate pairing code: %w", err)
	}
	for i, b := range buf {
		buf[i] = Alphabet[int(b)%len(Alphabet)]
	}
	return string(buf), nil
}
