// Package pseudonym derives stable, non-reversible pseudonymous identifiers
// from a (userID, clientID, dataType) triple and a secret key.
//
// The same triple always yields the same pseudonym, pseudonyms for the same
// user differ across clients, and the original identifiers cannot be
// recovered without the key.
package pseudonym

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	// Prefix marks every pseudonym produced by this package.
	Prefix = "ck_"

	// DataTypeDefault is the dataType tag used when a caller has no
	// semantic tag of its own.
	DataTypeDefault = "default"

	// MinKeyLength is the minimum accepted secret key length in characters.
	MinKeyLength = 32

	// encodedLength is the number of base64url characters kept after
	// truncating the encoded HMAC digest.
	encodedLength = 16
)

// Separator bytes appended after each segment of the derivation input.
// Three distinct non-printable bytes rather than one shared separator, so
// that shifting a character between adjacent fields cannot reconstruct the
// same byte sequence from a different triple. The scheme is not
// length-prefixed, so a field containing one of these byte values is not
// rejected; this is a known limitation kept for output compatibility.
const (
	sepUserID   = 0x00
	sepClientID = 0x01
	sepDataType = 0x02
)

// Error kinds returned by this package. Callers match them with errors.Is.
var (
	ErrInvalidKey       = errors.New("secret key must be at least 32 characters")
	ErrMissingField     = errors.New("required field is missing")
	ErrEmptyField       = errors.New("required field is empty")
	ErrInvalidBulkInput = errors.New("bulk input must be a list of user IDs")
)

// pseudonymPattern matches the exact pseudonym format: the fixed prefix
// followed by 16 characters from the URL-safe base64 alphabet.
var pseudonymPattern = regexp.MustCompile(`^ck_[A-Za-z0-9_-]{16}$`)

// Engine holds the secret key and performs keyed pseudonym derivation.
// All state is read-only after New returns, so a single Engine is safe for
// concurrent use without coordination.
type Engine struct {
	key []byte
}

// New creates an Engine from a secret key. The key must be at least 32
// characters; this is enforced once here and never re-checked per call.
func New(secretKey string) (*Engine, error) {
	if len(secretKey) < MinKeyLength {
		return nil, ErrInvalidKey
	}
	return &Engine{key: []byte(secretKey)}, nil
}

// Derive returns the pseudonym for a (userID, clientID, dataType) triple.
//
// Each input is trimmed of surrounding whitespace and must be non-empty
// afterwards. The pseudonym is the fixed prefix followed by the first 16
// characters of the unpadded URL-safe base64 encoding of an HMAC-SHA-256
// digest over the separator-joined inputs. Pure function of the engine key
// and the triple; no side effects.
func (e *Engine) Derive(userID, clientID, dataType string) (string, error) {
	userID, err := validateField("userId", userID)
	if err != nil {
		return "", err
	}
	clientID, err = validateField("clientId", clientID)
	if err != nil {
		return "", err
	}
	dataType, err = validateField("dataType", dataType)
	if err != nil {
		return "", err
	}

	msg := make([]byte, 0, len(userID)+len(clientID)+len(dataType)+3)
	msg = append(msg, userID...)
	msg = append(msg, sepUserID)
	msg = append(msg, clientID...)
	msg = append(msg, sepClientID)
	msg = append(msg, dataType...)
	msg = append(msg, sepDataType)

	mac := hmac.New(sha256.New, e.key)
	mac.Write(msg)
	digest := mac.Sum(nil)

	encoded := base64.RawURLEncoding.EncodeToString(digest)
	return Prefix + encoded[:encodedLength], nil
}

// DeriveDefault derives a pseudonym with the default dataType tag.
func (e *Engine) DeriveDefault(userID, clientID string) (string, error) {
	return e.Derive(userID, clientID, DataTypeDefault)
}

// Verify reports whether candidate has the exact pseudonym format: the
// fixed prefix followed by 16 URL-safe base64 characters.
//
// This is a format check only. The embedded digest fragment is a lossy
// truncation, so Verify cannot confirm that the candidate was produced by
// any particular engine or key. It never fails; malformed input simply
// yields false.
func Verify(candidate string) bool {
	return pseudonymPattern.MatchString(candidate)
}

// Verify reports whether candidate is a well-formed pseudonym. See the
// package-level Verify; the key plays no part in the check.
func (e *Engine) Verify(candidate string) bool {
	return Verify(candidate)
}

// validateField trims a required input and enforces that it is non-empty.
func validateField(name, value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", fmt.Errorf("%s: %w", name, ErrEmptyField)
	}
	return trimmed, nil
}
