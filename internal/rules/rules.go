package rules

import (
	"encoding/json"
	"os"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type Reason string

const (
	ReasonScript     Reason = "script"
	ReasonExperience Reason = "experience"
	ReasonLength     Reason = "length"
	ReasonAllowed    Reason = "allowed"
	ReasonClean      Reason = "clean"
	ReasonSymbol     Reason = "symbol"
	ReasonLink       Reason = "link"
	ReasonWord       Reason = "word"
)

type Verdict struct {
	Triggered bool
	Reason    Reason
	Match     string
}

// Set is an immutable snapshot of the rule file. A reload builds a whole
// new Set and swaps it in the Store.
type Set struct {
	TriggerWords   map[string]struct{}
	Allowed        map[string]struct{}
	LinkIndicators []string
	Symbols        []string
	MinLength      int
	MinMessages    int
}

type ruleFile struct {
	TriggerWords   []string `json:"trigger_words"`
	Allowed        []string `json:"allowed"`
	LinkIndicators []string `json:"link_indicators"`
	Symbols        []string `json:"symbols"`
	Additional     struct {
		MinLength   int `json:"min_length"`
		MinMessages int `json:"min_messages"`
	} `json:"additional_rules"`
}

const punctuation = ".,/#!$%^&*;:{}=-_`~()"

func emptySet() *Set {
	return &Set{
		TriggerWords: map[string]struct{}{},
		Allowed:      map[string]struct{}{},
	}
}

func loadSet(path string) (*Set, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return emptySet(), errors.Wrap(err, "read rules file")
	}
	var file ruleFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return emptySet(), errors.Wrap(err, "parse rules file")
	}

	set := emptySet()
	for _, w := range file.TriggerWords {
		set.TriggerWords[strings.ToLower(w)] = struct{}{}
	}
	for _, w := range file.Allowed {
		set.Allowed[strings.ToLower(w)] = struct{}{}
	}
	set.LinkIndicators = file.LinkIndicators
	set.Symbols = file.Symbols
	set.MinLength = file.Additional.MinLength
	set.MinMessages = file.Additional.MinMessages
	return set, nil
}

// Evaluate runs the fixed check order against one message. The first
// decisive check wins; later checks are not consulted.
func (s *Set) Evaluate(text string, userMessageCount int) Verdict {
	if containsHangul(text) {
		return Verdict{Reason: ReasonScript}
	}
	if s.MinMessages > 0 && userMessageCount >= s.MinMessages {
		return Verdict{Reason: ReasonExperience}
	}
	if s.MinLength > 0 && utf8.RuneCountInString(text) < s.MinLength {
		return Verdict{Reason: ReasonLength}
	}

	words := tokenize(text)
	for _, w := range words {
		if _, ok := s.Allowed[w]; ok {
			return Verdict{Reason: ReasonAllowed, Match: w}
		}
	}

	for _, sym := range s.Symbols {
		if sym != "" && strings.Contains(text, sym) {
			return Verdict{Triggered: true, Reason: ReasonSymbol, Match: sym}
		}
	}

	lowered := strings.ToLower(text)
	for _, ind := range s.LinkIndicators {
		if ind != "" && strings.Contains(lowered, ind) {
			return Verdict{Triggered: true, Reason: ReasonLink, Match: ind}
		}
	}

	for _, w := range words {
		if _, ok := s.TriggerWords[w]; ok {
			return Verdict{Triggered: true, Reason: ReasonWord, Match: w}
		}
	}

	return Verdict{Reason: ReasonClean}
}

// tokenize deletes punctuation outright rather than splitting on it, so a
// punctuated obfuscation like "sp-am" collapses back into one word.
func tokenize(text string) []string {
	lowered := strings.ToLower(text)
	stripped := strings.Map(func(r rune) rune {
		if strings.ContainsRune(punctuation, r) {
			return -1
		}
		return r
	}, lowered)
	return strings.Fields(stripped)
}

func containsHangul(text string) bool {
	for _, r := range text {
		if unicode.Is(unicode.Hangul, r) {
			return true
		}
	}
	return false
}

// Store holds the current rule set and allows hot reloads. Evaluate always
// sees a complete snapshot, never a half-reloaded one.
type Store struct {
	mu   sync.RWMutex
	path string
	set  *Set
}

// NewStore loads the rule file at path. A missing or malformed file is not
// fatal: the store starts with an empty set and the error is returned for
// the caller to report.
func NewStore(path string) (*Store, error) {
	set, err := loadSet(path)
	if err != nil {
		log.WithError(err).WithField("path", path).Error("cant load rules, starting with empty set")
	}
	return &Store{path: path, set: set}, err
}

func (s *Store) Reload() error {
	set, err := loadSet(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.set = set
	s.mu.Unlock()
	return nil
}

func (s *Store) Current() *Set {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.set
}

func (s *Store) Evaluate(text string, userMessageCount int) Verdict {
	return s.Current().Evaluate(text, userMessageCount)
}
