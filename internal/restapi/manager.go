// Package restapi is the REST front-end of spec.md §6, built on gin in
// the same shape as the teacher's internal/api package (a Handler
// holding its dependencies, a Register(*gin.Engine) method, the same
// Logger/Recovery middleware pair). Unlike the teacher, which serves a
// single node per process, this front-end supports multiple dstore.Store
// instances per process — POST /create/<sid> and DELETE /destroy/<sid>
// supplement that multi-store-per-process behavior back in from the
// original Python rest_store.py, which this repo's distillation dropped.
package restapi

import (
	"fmt"
	"sync"

	"dstore/internal/dstore"

	"github.com/sirupsen/logrus"
)

// Manager owns every dstore.Store this process hosts, keyed by store_id.
type Manager struct {
	mu     sync.Mutex
	stores map[string]*dstore.Store
	log    *logrus.Entry
}

// NewManager creates an empty Manager.
func NewManager(log *logrus.Logger) *Manager {
	if log == nil {
		log = logrus.New()
	}
	return &Manager{
		stores: make(map[string]*dstore.Store),
		log:    log.WithField("component", "restapi"),
	}
}

// Create builds and registers a new store under sid. It is an error to
// create a second store under an sid already in use.
func (m *Manager) Create(sid, root, home string, cacheSize int) error {
	m.mu.Lock()
	if _, exists := m.stores[sid]; exists {
		m.mu.Unlock()
		return fmt.Errorf("restapi: store %q already exists", sid)
	}
	m.mu.Unlock()

	s, err := dstore.New(sid, root, home, cacheSize, nil)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.stores[sid] = s
	m.mu.Unlock()

	m.log.WithFields(logrus.Fields{"store_id": sid, "root": root, "home": home}).Info("store created")
	return nil
}

// Get returns the store registered under sid, if any.
func (m *Manager) Get(sid string) (*dstore.Store, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stores[sid]
	return s, ok
}

// Destroy closes and unregisters the store under sid. Returns false if
// no such store exists.
func (m *Manager) Destroy(sid string) bool {
	m.mu.Lock()
	s, ok := m.stores[sid]
	if ok {
		delete(m.stores, sid)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	s.Close()
	m.log.WithField("store_id", sid).Info("store destroyed")
	return true
}

// CloseAll closes every store this process currently hosts, for use
// during process shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	stores := make([]*dstore.Store, 0, len(m.stores))
	for sid, s := range m.stores {
		stores = append(stores, s)
		delete(m.stores, sid)
	}
	m.mu.Unlock()

	for _, s := range stores {
		s.Close()
	}
}
