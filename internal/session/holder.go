package session

import (
	"errors"
	"sync"

	"github.com/wolfeidau/hoteladmin/internal/models"
	"golang.org/x/oauth2"
)

// ErrNoCredential is returned by Holder.Token when nothing is held.
var ErrNoCredential = errors.New("no credential held")

// CredentialStore is the narrow accessor the rest of the process uses to
// read the current credential. Only the Manager writes to it.
type CredentialStore interface {
	Get() (*models.Credential, bool)
	Set(cred *models.Credential)
	Clear()
}

var (
	_ CredentialStore    = (*Holder)(nil)
	_ oauth2.TokenSource = (*Holder)(nil)
)

// Holder is the process wide, in-memory slot for the current credential.
// It is never persisted.
type Holder struct {
	mu   sync.RWMutex
	cred *models.Credential
}

// NewHolder returns an empty holder.
func NewHolder() *Holder {
	return &Holder{}
}

// Get returns the current credential, if any.
func (h *Holder) Get() (*models.Credential, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cred, h.cred != nil
}

// Set replaces the held credential, nil clears it.
func (h *Holder) Set(cred *models.Credential) {
	h.mu.Lock()
	h.cred = cred
	h.mu.Unlock()
}

// Clear drops the held credential.
func (h *Holder) Clear() {
	h.Set(nil)
}

// Token implements oauth2.TokenSource so the transport can attach the
// credential with oauth2.Token.SetAuthHeader.
func (h *Holder) Token() (*oauth2.Token, error) {
	cred, ok := h.Get()
	if !ok {
		return nil, ErrNoCredential
	}
	return cred.OAuth2Token(), nil
}
