// Package profile synthesizes deterministic fake personal data (email,
// display name, postal address) on top of the pseudonym engine.
//
// Each field derives its own pseudonym under a distinct dataType tag, then
// hashes the pseudonym string and maps digest bytes to entries in fixed
// lookup pools. Identical inputs always yield identical fields; pseudonyms
// for different tags are unrelated, so fields cannot be correlated through
// the shared digest positions.
package profile

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/consentkeys/pseudomask/internal/pseudonym"
)

// DefaultEmailDomain is the domain appended to synthesized email addresses.
const DefaultEmailDomain = "consentkeys.local"

// dataType tags, one per semantic field.
const (
	dataTypeID      = "id"
	dataTypeEmail   = "email"
	dataTypeName    = "name"
	dataTypeAddress = "address"
)

// Pools holds the ordered lookup pools used to turn digest bytes into
// human-readable values. Contents and ordering are part of the output
// contract: changing either changes every synthesized field.
type Pools struct {
	FirstNames  []string
	LastNames   []string
	StreetNames []string
	Cities      []string
	States      []string
}

// DefaultPools returns the frozen built-in pools.
func DefaultPools() Pools {
	return Pools{
		FirstNames:  defaultFirstNames,
		LastNames:   defaultLastNames,
		StreetNames: defaultStreetNames,
		Cities:      defaultCities,
		States:      defaultStates,
	}
}

// validate checks that every pool has at least one entry.
func (p Pools) validate() error {
	named := []struct {
		name string
		pool []string
	}{
		{"first names", p.FirstNames},
		{"last names", p.LastNames},
		{"street names", p.StreetNames},
		{"cities", p.Cities},
		{"states", p.States},
	}
	for _, n := range named {
		if len(n.pool) == 0 {
			return fmt.Errorf("%s pool is empty", n.name)
		}
	}
	return nil
}

// Address is a synthesized postal address.
type Address struct {
	Street string `json:"street"`
	City   string `json:"city"`
	State  string `json:"state"`
	Zip    string `json:"zip"`
}

// String formats the address on a single line.
func (a Address) String() string {
	return fmt.Sprintf("%s, %s, %s %s", a.Street, a.City, a.State, a.Zip)
}

// Profile bundles the synthesized fields for one (userID, clientID) pair.
// It is a convenience aggregate, recomputed on demand and never stored.
type Profile struct {
	ID          string  `json:"id"`
	Email       string  `json:"email"`
	DisplayName string  `json:"display_name"`
	Address     Address `json:"address"`
}

// BulkResult is one entry of a bulk derivation: either a pseudonym or the
// error that prevented it.
type BulkResult struct {
	Pseudonym string `json:"pseudonym,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithPools substitutes the lookup pools.
func WithPools(pools Pools) Option {
	return func(s *Synthesizer) { s.pools = pools }
}

// WithEmailDomain substitutes the email domain suffix.
func WithEmailDomain(domain string) Option {
	return func(s *Synthesizer) { s.emailDomain = domain }
}

// Synthesizer builds fake profile fields from pseudonyms. The engine and
// pools are read-only after New, so a Synthesizer is safe for concurrent
// use.
type Synthesizer struct {
	engine      *pseudonym.Engine
	pools       Pools
	emailDomain string
}

// New creates a Synthesizer around an engine. By default it uses the
// built-in pools and email domain.
func New(engine *pseudonym.Engine, opts ...Option) (*Synthesizer, error) {
	s := &Synthesizer{
		engine:      engine,
		pools:       DefaultPools(),
		emailDomain: DefaultEmailDomain,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.pools.validate(); err != nil {
		return nil, fmt.Errorf("invalid pools: %w", err)
	}
	if s.emailDomain == "" {
		return nil, fmt.Errorf("email domain must not be empty")
	}
	return s, nil
}

// FakeEmail returns a deterministic fake email address: the pseudonym for
// the "email" dataType with its prefix stripped, at the configured domain.
func (s *Synthesizer) FakeEmail(userID, clientID string) (string, error) {
	p, err := s.engine.Derive(userID, clientID, dataTypeEmail)
	if err != nil {
		return "", err
	}
	local := strings.TrimPrefix(p, pseudonym.Prefix)
	return local + "@" + s.emailDomain, nil
}

// FakeDisplayName returns a deterministic "<first> <last>" name selected
// from the name pools by the first two bytes of a SHA-256 digest of the
// "name" pseudonym.
func (s *Synthesizer) FakeDisplayName(userID, clientID string) (string, error) {
	p, err := s.engine.Derive(userID, clientID, dataTypeName)
	if err != nil {
		return "", err
	}
	h := sha256.Sum256([]byte(p))
	first := s.pools.FirstNames[int(h[0])%len(s.pools.FirstNames)]
	last := s.pools.LastNames[int(h[1])%len(s.pools.LastNames)]
	return first + " " + last, nil
}

// FakeAddress returns a deterministic postal address. Digest bytes of the
// "address" pseudonym select the street number (1-9999, never 0), street
// name, city and state; bytes 4 and 5 form a big-endian 16-bit value
// reduced into the 10000-99999 zip range.
func (s *Synthesizer) FakeAddress(userID, clientID string) (Address, error) {
	p, err := s.engine.Derive(userID, clientID, dataTypeAddress)
	if err != nil {
		return Address{}, err
	}
	h := sha256.Sum256([]byte(p))

	number := int(h[0])%9999 + 1
	street := s.pools.StreetNames[int(h[1])%len(s.pools.StreetNames)]
	city := s.pools.Cities[int(h[2])%len(s.pools.Cities)]
	state := s.pools.States[int(h[3])%len(s.pools.States)]
	zip := int(binary.BigEndian.Uint16(h[4:6]))%90000 + 10000

	return Address{
		Street: fmt.Sprintf("%d %s", number, street),
		City:   city,
		State:  state,
		Zip:    fmt.Sprintf("%05d", zip),
	}, nil
}

// FakeProfile aggregates an id pseudonym, email, display name and address
// for one (userID, clientID) pair. Four independent derivations; the first
// failure aborts the whole profile.
func (s *Synthesizer) FakeProfile(userID, clientID string) (Profile, error) {
	id, err := s.engine.Derive(userID, clientID, dataTypeID)
	if err != nil {
		return Profile{}, err
	}
	email, err := s.FakeEmail(userID, clientID)
	if err != nil {
		return Profile{}, err
	}
	name, err := s.FakeDisplayName(userID, clientID)
	if err != nil {
		return Profile{}, err
	}
	addr, err := s.FakeAddress(userID, clientID)
	if err != nil {
		return Profile{}, err
	}
	return Profile{
		ID:          id,
		Email:       email,
		DisplayName: name,
		Address:     addr,
	}, nil
}

// BulkPseudonyms derives pseudonyms for a batch of user IDs against one
// client and dataType. A per-entry failure is captured in that entry's
// result instead of aborting the batch; this is the only operation with
// partial-failure semantics. A nil slice fails with ErrInvalidBulkInput.
func (s *Synthesizer) BulkPseudonyms(userIDs []string, clientID, dataType string) (map[string]BulkResult, error) {
	if userIDs == nil {
		return nil, pseudonym.ErrInvalidBulkInput
	}

	results := make(map[string]BulkResult, len(userIDs))
	for _, userID := range userIDs {
		p, err := s.engine.Derive(userID, clientID, dataType)
		if err != nil {
			results[userID] = BulkResult{Error: err.Error()}
			continue
		}
		results[userID] = BulkResult{Pseudonym: p}
	}
	return results, nil
}
