// Package session owns the client's credentials and composes login,
// logout, account creation, and stored-session restoration into a
// single-flight credential result. Every new operation resets the
// session-scoped dependents before it starts, so no dependent ever
// observes a stale session concurrently with a new one.
package session

import (
	"log"
	"sync"

	"github.com/finch-chat/finch/internal/api"
	"github.com/finch-chat/finch/internal/async"
	"github.com/finch-chat/finch/internal/threads"
)

// Transport is the slice of the service client the coordinator drives.
type Transport interface {
	Login(username, password string) *async.Result[*api.Credentials]
	Logout() *async.Result[struct{}]
	CreateAccount(account api.NewAccount) *async.Result[*api.Credentials]
	GetAuthenticatedUser() *async.Result[api.User]
	SetCredentials(creds *api.Credentials)
}

// CredentialStore persists the session between runs.
type CredentialStore interface {
	RestoreCredentials() (*api.Credentials, error)
	SaveCredentials(creds *api.Credentials) error
}

// SyncLoop is the thread sync loop as the coordinator sees it.
type SyncLoop interface {
	RequestUpdate()
	Cancel()
}

// Refresher is a session-scoped poller: reset on credential change,
// kicked once a new session is established.
type Refresher interface {
	Reset()
	Kick()
}

// Coordinator is the single writer of credentials; everything else
// reads them through the transport.
type Coordinator struct {
	transport Transport
	creds     CredentialStore
	coll      *threads.Collection
	loop      SyncLoop
	pollers   []Refresher

	// opMu serializes operation starts against session commits: a
	// reset either completes before a commit begins or waits for the
	// commit to finish, and a canceled operation can never commit
	// after the reset that canceled it.
	opMu sync.Mutex

	mu      sync.Mutex
	session *api.Credentials
	current *async.Result[*api.Credentials]
}

// NewCoordinator wires the coordinator to its collaborators and
// dependents.
func NewCoordinator(transport Transport, creds CredentialStore, coll *threads.Collection, loop SyncLoop, pollers ...Refresher) *Coordinator {
	return &Coordinator{
		transport: transport,
		creds:     creds,
		coll:      coll,
		loop:      loop,
		pollers:   pollers,
	}
}

// Session returns the current credentials, nil when logged out.
func (c *Coordinator) Session() *api.Credentials {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Login starts a fresh session for username.
func (c *Coordinator) Login(username, password string) *async.Result[*api.Credentials] {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.beginLocked()
	c.transport.SetCredentials(nil)

	res := async.New(func(ctl *async.Controller[*api.Credentials]) (*api.Credentials, error) {
		ctl.Steps(2)
		creds, err := async.Chain(ctl, c.transport.Login(username, password), 1)
		if err != nil {
			return nil, err
		}
		c.establish(ctl.Token(), creds)
		ctl.StepDone()
		return creds, nil
	})
	c.setCurrent(res)
	return res
}

// CreateAccount registers an account and establishes its session.
func (c *Coordinator) CreateAccount(account api.NewAccount) *async.Result[*api.Credentials] {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.beginLocked()
	c.transport.SetCredentials(nil)

	res := async.New(func(ctl *async.Controller[*api.Credentials]) (*api.Credentials, error) {
		ctl.Steps(2)
		creds, err := async.Chain(ctl, c.transport.CreateAccount(account), 1)
		if err != nil {
			return nil, err
		}
		c.establish(ctl.Token(), creds)
		ctl.StepDone()
		return creds, nil
	})
	c.setCurrent(res)
	return res
}

// Logout ends the session locally and, when one exists, remotely. It is
// idempotent: a second call observes already-reset dependents and
// completes with nil credentials again. A failed remote logout still
// clears the local session.
func (c *Coordinator) Logout() *async.Result[*api.Credentials] {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	hadSession := c.session != nil
	c.mu.Unlock()

	c.beginLocked()

	res := async.New(func(ctl *async.Controller[*api.Credentials]) (*api.Credentials, error) {
		if hadSession {
			if _, err := async.Chain(ctl, c.transport.Logout(), 0); err != nil {
				log.Printf("remote logout failed: %v", err)
			}
		}
		c.commit(ctl.Token(), func() {
			c.transport.SetCredentials(nil)
			if err := c.creds.SaveCredentials(nil); err != nil {
				log.Printf("clear stored credentials failed: %v", err)
			}
		})
		return nil, nil
	})
	c.setCurrent(res)
	return res
}

// Restore revives a stored session, validating it against the service
// before use. A missing or rejected stored session completes with nil
// credentials; only transient failures surface as errors.
func (c *Coordinator) Restore() *async.Result[*api.Credentials] {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.beginLocked()
	c.transport.SetCredentials(nil)

	res := async.New(func(ctl *async.Controller[*api.Credentials]) (*api.Credentials, error) {
		stored, err := c.creds.RestoreCredentials()
		if ctl.Token().Canceled() {
			return nil, async.ErrCanceled
		}
		if err != nil {
			log.Printf("restore credentials failed: %v", err)
			return nil, nil
		}
		if stored == nil {
			return nil, nil
		}
		mustBeValid(stored)

		ctl.Steps(2)
		if !c.commit(ctl.Token(), func() { c.transport.SetCredentials(stored) }) {
			return nil, async.ErrCanceled
		}
		if _, err := async.Chain(ctl, c.transport.GetAuthenticatedUser(), 1); err != nil {
			if api.IsValidation(err) {
				// The stored session is dead; forget it.
				c.commit(ctl.Token(), func() {
					c.transport.SetCredentials(nil)
					if saveErr := c.creds.SaveCredentials(nil); saveErr != nil {
						log.Printf("clear stored credentials failed: %v", saveErr)
					}
				})
				return nil, nil
			}
			c.commit(ctl.Token(), func() { c.transport.SetCredentials(nil) })
			return nil, err
		}
		c.establish(ctl.Token(), stored)
		ctl.StepDone()
		return stored, nil
	})
	c.setCurrent(res)
	return res
}

// beginLocked cancels any in-flight credential operation and
// synchronously resets every session-scoped dependent. Callers hold
// opMu, so the reset never interleaves with a commit.
func (c *Coordinator) beginLocked() {
	c.mu.Lock()
	prev := c.current
	c.current = nil
	c.session = nil
	c.mu.Unlock()

	if prev != nil {
		prev.Cancel()
	}
	c.loop.Cancel()
	c.coll.Clear()
	for _, p := range c.pollers {
		p.Reset()
	}
}

// commit runs fn under the operation lock unless tok was canceled. A
// reset that canceled tok is ordered before this check, so a canceled
// operation observes it here and produces no side effects.
func (c *Coordinator) commit(tok *async.Token, fn func()) bool {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if tok.Canceled() {
		return false
	}
	fn()
	return true
}

// establish installs a freshly won session: persist it, authorize the
// transport, and wake the session-scoped loops. A no-op when the
// operation was canceled underway.
func (c *Coordinator) establish(tok *async.Token, creds *api.Credentials) {
	mustBeValid(creds)
	c.commit(tok, func() {
		c.mu.Lock()
		c.session = creds
		c.mu.Unlock()

		c.transport.SetCredentials(creds)
		if err := c.creds.SaveCredentials(creds); err != nil {
			log.Printf("persist credentials failed: %v", err)
		}
		c.loop.RequestUpdate()
		for _, p := range c.pollers {
			p.Kick()
		}
	})
}

func (c *Coordinator) setCurrent(res *async.Result[*api.Credentials]) {
	c.mu.Lock()
	c.current = res
	c.mu.Unlock()
}

// mustBeValid enforces the credential invariant: a non-nil credential
// always has a session key. Violations are programming defects, not
// runtime conditions.
func mustBeValid(creds *api.Credentials) {
	if creds != nil && creds.SessionKey == "" {
		panic("session: credentials without a session key")
	}
}
