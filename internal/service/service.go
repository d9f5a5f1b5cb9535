// Package service orchestrates conversation turns: session resolution,
// intent classification, module dispatch, context merging and persistence.
package service

import (
	"encoding/json"
	"sync"

	"github.com/maisonhq/chatcore/internal/adapter/llm"
	"github.com/maisonhq/chatcore/internal/adapter/propertydata"
	"github.com/maisonhq/chatcore/internal/adapter/refsync"
	"github.com/maisonhq/chatcore/internal/config"
	store "github.com/maisonhq/chatcore/internal/repository"
)

type Service struct {
	store      store.Store
	llm        llm.Client
	properties *propertydata.Client
	refSync    *refsync.Client
	cfg        *config.Config
	modules    *moduleRegistry
	locks      *keyedMutex
}

func New(st store.Store, llmClient llm.Client, properties *propertydata.Client, refSync *refsync.Client, cfg *config.Config) *Service {
	return &Service{
		store:      st,
		llm:        llmClient,
		properties: properties,
		refSync:    refSync,
		cfg:        cfg,
		modules:    newModuleRegistry(llmClient, properties),
		locks:      newKeyedMutex(),
	}
}

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

// keyedMutex serializes work per conversation. Entries are reference
// counted and removed once the last holder releases, so the map does
// not grow with the number of conversations ever seen.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{entries: make(map[string]*lockEntry)}
}

// Lock blocks until the key is held and returns the release func.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &lockEntry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}
