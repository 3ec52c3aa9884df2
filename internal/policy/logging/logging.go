// Package logging holds the operator-controlled switches for membership
// and message logging. The switches live in the kv store so they survive
// restarts; the in-memory copy is the single source consulted on the hot
// path.
package logging

import (
	"context"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	kvKeyLogMembers  = "log_members"
	kvKeyLogMessages = "log_messages"
)

type kvStore interface {
	GetKV(ctx context.Context, key string) (string, error)
	SetKV(ctx context.Context, key string, value string) error
}

type Policy struct {
	store kvStore

	mu       sync.RWMutex
	members  bool
	messages bool
}

// NewPolicy loads the persisted switches. Absent keys default to enabled.
func NewPolicy(ctx context.Context, store kvStore) *Policy {
	p := &Policy{store: store, members: true, messages: true}
	if err := p.Reload(ctx); err != nil {
		log.WithError(err).Warn("cant load log policy, using defaults")
	}
	return p
}

func (p *Policy) Reload(ctx context.Context) error {
	members, err := p.loadFlag(ctx, kvKeyLogMembers)
	if err != nil {
		return err
	}
	messages, err := p.loadFlag(ctx, kvKeyLogMessages)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.members = members
	p.messages = messages
	p.mu.Unlock()
	return nil
}

func (p *Policy) loadFlag(ctx context.Context, key string) (bool, error) {
	raw, err := p.store.GetKV(ctx, key)
	if err != nil {
		return true, errors.Wrapf(err, "load %s", key)
	}
	if raw == "" {
		return true, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return true, errors.Wrapf(err, "parse %s", key)
	}
	return value, nil
}

func (p *Policy) LogMembers() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.members
}

func (p *Policy) LogMessages() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.messages
}

// ToggleMembers flips the membership switch, persists it and returns the
// new value. The in-memory flag only changes when the write succeeds.
func (p *Policy) ToggleMembers(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	next := !p.members
	if err := p.store.SetKV(ctx, kvKeyLogMembers, strconv.FormatBool(next)); err != nil {
		return p.members, errors.Wrap(err, "persist member log switch")
	}
	p.members = next
	return next, nil
}

func (p *Policy) ToggleMessages(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	next := !p.messages
	if err := p.store.SetKV(ctx, kvKeyLogMessages, strconv.FormatBool(next)); err != nil {
		return p.messages, errors.Wrap(err, "persist message log switch")
	}
	p.messages = next
	return next, nil
}
