// Package questions holds the interview question bank and picks the next
// question, either from the adaptive backend or by difficulty tier.
package questions

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

const DefaultDomain = "general"

// Opener is asked when a domain has no questions at all.
const Opener = "Please tell us about your experience and skills."

//go:embed bank.yaml
var builtin []byte

// Bank is a set of question lists keyed by domain. Interview lists are
// ordered from easiest to hardest.
type Bank struct {
	Interview map[string][]string `yaml:"interview"`
	Knowledge map[string][]string `yaml:"knowledge"`
	Topics    []string            `yaml:"topics"`
}

// Builtin returns the bank compiled into the binary.
func Builtin() *Bank {
	b, err := Parse(builtin)
	if err != nil {
		panic(fmt.Sprintf("builtin question bank: %v", err))
	}
	return b
}

func Parse(data []byte) (*Bank, error) {
	var b Bank
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse question bank: %w", err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// LoadFile reads a bank from disk. Sections the file leaves out are taken
// from the builtin bank.
func LoadFile(path string) (*Bank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var b Bank
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	def := Builtin()
	if len(b.Interview) == 0 {
		b.Interview = def.Interview
	}
	if len(b.Knowledge) == 0 {
		b.Knowledge = def.Knowledge
	}
	if len(b.Topics) == 0 {
		b.Topics = def.Topics
	}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &b, nil
}

func (b *Bank) Validate() error {
	if len(b.Interview) == 0 {
		return errors.New("question bank has no interview questions")
	}
	for d, qs := range b.Interview {
		if len(qs) == 0 {
			return fmt.Errorf("interview domain %q is empty", d)
		}
	}
	return nil
}

// Domains lists the interview domains, sorted.
func (b *Bank) Domains() []string {
	ds := make([]string, 0, len(b.Interview))
	for d := range b.Interview {
		ds = append(ds, d)
	}
	sort.Strings(ds)
	return ds
}

// Questions returns the interview questions for domain, falling back to the
// general list for unknown domains.
func (b *Bank) Questions(domain string) []string {
	if qs, ok := b.Interview[domain]; ok && len(qs) > 0 {
		return qs
	}
	return b.Interview[DefaultDomain]
}

// First is the opening question of a domain.
func (b *Bank) First(domain string) string {
	qs := b.Questions(domain)
	if len(qs) == 0 {
		return Opener
	}
	return qs[0]
}

// RoundRobin returns knowledge check question i, wrapping around. Domains
// without a knowledge list use the interview list.
func (b *Bank) RoundRobin(domain string, i int) string {
	qs := b.Knowledge[domain]
	if len(qs) == 0 {
		qs = b.Questions(domain)
	}
	if len(qs) == 0 {
		return Opener
	}
	if i < 0 {
		i = -i
	}
	return qs[i%len(qs)]
}

// Source hands out the current bank. It is safe for concurrent use and is
// swapped by Watch when the backing file changes.
type Source struct {
	mu   sync.RWMutex
	bank *Bank
}

func NewSource(b *Bank) *Source { return &Source{bank: b} }

func (s *Source) Bank() *Bank {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bank
}

func (s *Source) Set(b *Bank) {
	s.mu.Lock()
	s.bank = b
	s.mu.Unlock()
}
