// Package identity provides the pond's self-sovereign signing identity.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"
)

// ErrInvalidIdentity is returned in strict mode when an existing identity
// file cannot be used.
var ErrInvalidIdentity = errors.New("invalid pond identity file")

// ErrNotInitialized is returned when signing before Initialize.
var ErrNotInitialized = errors.New("pond identity not initialized")

// fileRecord is the persisted identity. The private key is the 32-byte
// Ed25519 seed, hex encoded.
type fileRecord struct {
	PrivateKeyHex string `json:"private_key_hex"`
	PublicKeyHex  string `json:"public_key_hex"`
	PondID        string `json:"pond_id"`
	FirstBreath   string `json:"first_breath"`
}

// Identity is the public part of the pond identity.
type Identity struct {
	PondID       string `json:"pond_id"`
	PublicKeyHex string `json:"public_key"`
	FirstBreath  string `json:"first_breath"`
}

// Options configures a Manager.
type Options struct {
	Path string
	// Strict makes Initialize fail instead of regenerating when the
	// existing file is unreadable or incomplete.
	Strict bool
	Logger *slog.Logger
	Now    func() time.Time
}

// Manager owns the signing key. It is read-only after Initialize.
type Manager struct {
	mu     sync.RWMutex
	opts   Options
	priv   ed25519.PrivateKey
	ident  Identity
	loaded bool
}

// NewManager creates a manager for the identity file at opts.Path.
func NewManager(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{opts: opts}
}

// DerivePondID hashes raw public key bytes with 32-byte BLAKE2b, the digest
// the depth aggregator recomputes when verifying signatures.
func DerivePondID(pub ed25519.PublicKey) string {
	sum := blake2b.Sum256(pub)
	return hex.EncodeToString(sum[:])
}

// Initialize loads the persisted identity or forges and persists a new one.
func (m *Manager) Initialize() (Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loaded {
		return m.ident, nil
	}

	priv, ident, err := readFile(m.opts.Path)
	switch {
	case err == nil:
		m.priv, m.ident, m.loaded = priv, ident, true
		m.opts.Logger.Info("Loaded existing pond identity", "pond_id", shortID(ident.PondID))
		return ident, nil
	case errors.Is(err, fs.ErrNotExist):
	default:
		if m.opts.Strict {
			return Identity{}, fmt.Errorf("%w: %w", ErrInvalidIdentity, err)
		}
		m.opts.Logger.Warn("Failed to load pond identity, regenerating", "path", m.opts.Path, "error", err)
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Identity{}, fmt.Errorf("generate keypair: %w", err)
	}
	ident = Identity{
		PondID:       DerivePondID(pub),
		PublicKeyHex: hex.EncodeToString(pub),
		FirstBreath:  m.opts.Now().UTC().Format(time.RFC3339Nano),
	}
	rec := fileRecord{
		PrivateKeyHex: hex.EncodeToString(priv.Seed()),
		PublicKeyHex:  ident.PublicKeyHex,
		PondID:        ident.PondID,
		FirstBreath:   ident.FirstBreath,
	}
	if err := writeFile(m.opts.Path, rec); err != nil {
		m.opts.Logger.Error("Failed to persist pond identity", "path", m.opts.Path, "error", err)
	}

	m.priv, m.ident, m.loaded = priv, ident, true
	m.opts.Logger.Info("New pond identity forged", "pond_id", ident.PondID, "public_key", ident.PublicKeyHex)
	return ident, nil
}

// Public returns the public identity and whether it is initialized.
func (m *Manager) Public() (Identity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ident, m.loaded
}

// Sign returns the hex Ed25519 signature of msg.
func (m *Manager) Sign(msg []byte) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.loaded {
		return "", ErrNotInitialized
	}
	return hex.EncodeToString(ed25519.Sign(m.priv, msg)), nil
}

// Load reads the identity file without ever creating one.
func Load(path string) (Identity, error) {
	_, ident, err := readFile(path)
	return ident, err
}

func readFile(path string) (ed25519.PrivateKey, Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Identity{}, err
	}
	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, Identity{}, fmt.Errorf("decode identity: %w", err)
	}
	if rec.PrivateKeyHex == "" || rec.PublicKeyHex == "" || rec.PondID == "" || rec.FirstBreath == "" {
		return nil, Identity{}, errors.New("identity file is missing required fields")
	}
	seed, err := hex.DecodeString(rec.PrivateKeyHex)
	if err != nil || len(seed) != ed25519.SeedSize {
		return nil, Identity{}, errors.New("identity private key is not a hex ed25519 seed")
	}
	priv := ed25519.NewKeyFromSeed(seed)
	if hex.EncodeToString(priv.Public().(ed25519.PublicKey)) != rec.PublicKeyHex {
		return nil, Identity{}, errors.New("identity public key does not match private key")
	}
	return priv, Identity{
		PondID:       rec.PondID,
		PublicKeyHex: rec.PublicKeyHex,
		FirstBreath:  rec.FirstBreath,
	}, nil
}

func writeFile(path string, rec fileRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode identity: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create identity directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write identity: %w", err)
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 16 {
		return id[:16]
	}
	return id
}

// IPFromRequest returns a normalized remote IP, used to seed anonymous
// traveler ids.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
