// Package identity manages the pseudonymous identity of a field node.
//
// An identity is an ECDSA P-256 key pair. Only the public key leaves this
// package: it is exported as base64 SubjectPublicKeyInfo, and the node id
// is the first 12 hex characters (upper-case) of its SHA-256 digest. The
// private key is held in process memory and is never serialized, so after
// a restart the node keeps its identity but can no longer sign.
package identity

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/roach88/fieldnode/internal/clock"
	"github.com/roach88/fieldnode/internal/model"
	"github.com/roach88/fieldnode/internal/store"
)

// NodeIDLength is the number of hex characters in a node id.
const NodeIDLength = 12

// ErrNoSigningKey is returned by Sign when this process did not create the
// identity, or after Forget.
var ErrNoSigningKey = errors.New("identity: signing key not available in this process")

// Manager creates, loads and uses the node identity.
//
// Thread-safety: all methods are safe for concurrent use.
type Manager struct {
	store  *store.Store
	clock  clock.Clock
	logger *slog.Logger

	mu  sync.RWMutex
	key *ecdsa.PrivateKey
	id  *model.Identity
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the clock used for the creation timestamp.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// New creates a Manager backed by st.
func New(st *store.Store, opts ...Option) *Manager {
	m := &Manager{
		store:  st,
		clock:  clock.New(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create generates a key pair, derives the node id, and persists the
// identity together with an INFO audit entry. It fails with
// model.ErrIdentityExists if the store already holds an identity. On any
// failure the caller receives no identity and no key is retained.
func (m *Manager) Create(ctx context.Context) (model.Identity, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return model.Identity{}, fmt.Errorf("create identity: generate key: %w", err)
	}
	pub, err := EncodePublicKey(&key.PublicKey)
	if err != nil {
		return model.Identity{}, fmt.Errorf("create identity: %w", err)
	}

	id := model.Identity{
		NodeID:    DeriveNodeID(pub),
		PublicKey: pub,
		CreatedAt: m.clock.Now().UTC().Truncate(time.Millisecond),
	}
	if err := m.store.CreateIdentity(ctx, id); err != nil {
		return model.Identity{}, fmt.Errorf("create identity: %w", err)
	}

	m.mu.Lock()
	m.key = key
	m.id = &id
	m.mu.Unlock()
	m.store.LabelAudit(id.NodeID)

	m.logger.Info("identity created", "node_id", id.NodeID)
	return id, nil
}

// Load returns the persisted identity, or model.ErrNoIdentity if none has
// been created.
func (m *Manager) Load(ctx context.Context) (model.Identity, error) {
	m.mu.RLock()
	if m.id != nil {
		id := *m.id
		m.mu.RUnlock()
		return id, nil
	}
	m.mu.RUnlock()

	id, err := m.store.Identity(ctx)
	if errors.Is(err, model.ErrNotFound) {
		return model.Identity{}, model.ErrNoIdentity
	}
	if err != nil {
		return model.Identity{}, fmt.Errorf("load identity: %w", err)
	}

	m.mu.Lock()
	if m.id == nil {
		m.id = &id
	}
	m.mu.Unlock()
	m.store.LabelAudit(id.NodeID)
	return id, nil
}

// Ensure loads the identity, creating it on first run. created reports
// whether this call created it.
func (m *Manager) Ensure(ctx context.Context) (id model.Identity, created bool, err error) {
	id, err = m.Load(ctx)
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, model.ErrNoIdentity) {
		return model.Identity{}, false, err
	}

	id, err = m.Create(ctx)
	if errors.Is(err, model.ErrIdentityExists) {
		// Lost a race with another creator.
		id, err = m.Load(ctx)
		return id, false, err
	}
	if err != nil {
		return model.Identity{}, false, err
	}
	return id, true, nil
}

// NodeID returns the node id of the loaded or created identity, or "" if
// neither Load nor Create has succeeded in this process.
func (m *Manager) NodeID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.id == nil {
		return ""
	}
	return m.id.NodeID
}

// CanSign reports whether this process holds the private key.
func (m *Manager) CanSign() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.key != nil
}

// Sign returns the base64 ASN.1 ECDSA signature over SHA-256(payload).
func (m *Manager) Sign(payload []byte) (string, error) {
	m.mu.RLock()
	key := m.key
	m.mu.RUnlock()
	if key == nil {
		return "", ErrNoSigningKey
	}

	digest := sha256.Sum256(payload)
	sig, err := ecdsa.SignASN1(rand.Reader, key, digest[:])
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Forget drops all in-memory identity state, including the private key.
// Called on session wipe.
func (m *Manager) Forget() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.key = nil
	m.id = nil
}

// EncodePublicKey exports pub as base64 SubjectPublicKeyInfo (DER).
func EncodePublicKey(pub *ecdsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("encode public key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

// DeriveNodeID hashes the base64 public key text with SHA-256 and returns
// the first NodeIDLength hex characters, upper-cased.
func DeriveNodeID(publicKey string) string {
	sum := sha256.Sum256([]byte(publicKey))
	return strings.ToUpper(hex.EncodeToString(sum[:]))[:NodeIDLength]
}

// Verify checks a signature produced by Sign against a base64 public key.
func Verify(publicKey string, payload []byte, signature string) (bool, error) {
	der, err := base64.StdEncoding.DecodeString(publicKey)
	if err != nil {
		return false, fmt.Errorf("verify: decode public key: %w", err)
	}
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return false, fmt.Errorf("verify: parse public key: %w", err)
	}
	pub, ok := parsed.(*ecdsa.PublicKey)
	if !ok {
		return false, fmt.Errorf("verify: public key is %T, want ECDSA", parsed)
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false, fmt.Errorf("verify: decode signature: %w", err)
	}
	digest := sha256.Sum256(payload)
	return ecdsa.VerifyASN1(pub, digest[:], sig), nil
}
