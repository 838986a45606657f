package filerepo

import (
	"bytes"
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/jrsteele09/go-session-client/storage"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

var _ storage.Repo = (*FileRepo)(nil)

const (
	saltLength = 16
	// magic, memory, iterations, parallelism, salt
	headerLength = 4 + 4 + 4 + 1 + saltLength
)

var (
	sealedMagic = []byte("OSS2")
	validKey    = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
)

// KDFParams is the Argon2id cost used to turn the passphrase into a key. It is
// stored in every sealed record so records stay readable when it changes.
type KDFParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
}

// DefaultKDFParams follows the RFC 9106 second recommended option.
var DefaultKDFParams = KDFParams{MemoryKiB: 64 * 1024, Iterations: 3, Parallelism: 4}

// Records claiming more than this are rejected rather than derived.
const maxMemoryKiB = 4 * 64 * 1024

func (p KDFParams) validate() error {
	switch {
	case p.MemoryKiB < 8*uint32(p.Parallelism) || p.MemoryKiB > maxMemoryKiB:
		return fmt.Errorf("argon2 memory %d KiB out of range", p.MemoryKiB)
	case p.Iterations < 1 || p.Iterations > 16:
		return fmt.Errorf("argon2 iterations %d out of range", p.Iterations)
	case p.Parallelism < 1:
		return fmt.Errorf("argon2 parallelism must be positive")
	}
	return nil
}

// FileRepo stores each key as a file under dir. With a passphrase, contents are
// sealed with XChaCha20-Poly1305 under a key stretched from it with Argon2id.
type FileRepo struct {
	dir        string
	passphrase []byte
	params     KDFParams

	mu      sync.Mutex
	current *derivedKey
}

type Option func(*FileRepo)

// WithKDFParams overrides the Argon2id cost for new records.
func WithKDFParams(p KDFParams) Option {
	return func(r *FileRepo) { r.params = p }
}

// New creates dir if needed. An empty passphrase stores plaintext.
func New(dir, passphrase string, opts ...Option) (*FileRepo, error) {
	r := &FileRepo{dir: dir, passphrase: []byte(passphrase), params: DefaultKDFParams}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.params.validate(); err != nil {
		return nil, fmt.Errorf("filerepo.New: %w", err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("filerepo.New: %w", err)
	}
	return r, nil
}

func (r *FileRepo) Load(_ context.Context, key string) ([]byte, error) {
	path, err := r.path(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("filerepo.Load: %w", err)
	}

	if len(r.passphrase) == 0 {
		return data, nil
	}
	return r.open(key, data)
}

// Save writes through a temp file and rename so a crash never leaves a
// half-written record behind.
func (r *FileRepo) Save(_ context.Context, key string, data []byte) error {
	path, err := r.path(key)
	if err != nil {
		return err
	}

	if len(r.passphrase) > 0 {
		if data, err = r.seal(key, data); err != nil {
			return err
		}
	}

	tmp, err := os.CreateTemp(r.dir, "."+key+".*")
	if err != nil {
		return fmt.Errorf("filerepo.Save: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("filerepo.Save write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("filerepo.Save close: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("filerepo.Save rename: %w", err)
	}
	return nil
}

func (r *FileRepo) Delete(_ context.Context, key string) error {
	path, err := r.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("filerepo.Delete: %w", err)
	}
	return nil
}

func (r *FileRepo) path(key string) (string, error) {
	if !validKey.MatchString(key) {
		return "", errors.Wrapf(errors.ErrInvalidRequest, "filerepo: invalid key %q", key)
	}
	return filepath.Join(r.dir, key), nil
}

// seal lays out: magic | memory | iterations | parallelism | salt | nonce |
// ciphertext. The key name is bound as additional data so a record cannot be
// moved to another key.
func (r *FileRepo) seal(key string, plaintext []byte) ([]byte, error) {
	k, err := r.sealingKey()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, k.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("filerepo.seal nonce: %w", err)
	}

	out := make([]byte, 0, headerLength+len(nonce)+len(plaintext)+k.aead.Overhead())
	out = append(out, sealedMagic...)
	out = binary.BigEndian.AppendUint32(out, k.params.MemoryKiB)
	out = binary.BigEndian.AppendUint32(out, k.params.Iterations)
	out = append(out, k.params.Parallelism)
	out = append(out, k.salt...)
	out = append(out, nonce...)
	return k.aead.Seal(out, nonce, plaintext, []byte(key)), nil
}

func (r *FileRepo) open(key string, data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, sealedMagic) {
		return nil, errors.Wrapf(errors.ErrStorageCorrupt, "filerepo.open: not a sealed record")
	}
	if len(data) < headerLength+chacha20poly1305.NonceSizeX {
		return nil, errors.Wrapf(errors.ErrStorageCorrupt, "filerepo.open: truncated record")
	}

	rest := data[len(sealedMagic):]
	params := KDFParams{
		MemoryKiB:   binary.BigEndian.Uint32(rest[0:4]),
		Iterations:  binary.BigEndian.Uint32(rest[4:8]),
		Parallelism: rest[8],
	}
	if err := params.validate(); err != nil {
		return nil, errors.Wrapf(errors.ErrStorageCorrupt, "filerepo.open: %v", err)
	}
	salt, rest := rest[9:9+saltLength], rest[9+saltLength:]

	k, err := r.derive(params, salt)
	if err != nil {
		return nil, err
	}
	nonce, ciphertext := rest[:k.aead.NonceSize()], rest[k.aead.NonceSize():]
	plaintext, err := k.aead.Open(nil, nonce, ciphertext, []byte(key))
	if err != nil {
		return nil, errors.Wrapf(errors.ErrStorageCorrupt, "filerepo.open: %v", err)
	}
	return plaintext, nil
}

// sealingKey returns the key used for writes, deriving it on first use. Every
// write reuses its salt; nonces are random per record.
func (r *FileRepo) sealingKey() (*derivedKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil {
		return r.current, nil
	}

	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("filerepo.seal salt: %w", err)
	}
	k, err := newDerivedKey(r.passphrase, r.params, salt)
	if err != nil {
		return nil, err
	}
	r.current = k
	return k, nil
}

// derive returns the key for a stored record, reusing the write key when the
// record was sealed with it.
func (r *FileRepo) derive(params KDFParams, salt []byte) (*derivedKey, error) {
	r.mu.Lock()
	current := r.current
	r.mu.Unlock()
	if current != nil && current.params == params && bytes.Equal(current.salt, salt) {
		return current, nil
	}
	return newDerivedKey(r.passphrase, params, salt)
}

type derivedKey struct {
	params KDFParams
	salt   []byte
	aead   cipher.AEAD
}

// newDerivedKey stretches the passphrase with Argon2id.
func newDerivedKey(passphrase []byte, params KDFParams, salt []byte) (*derivedKey, error) {
	k := argon2.IDKey(passphrase, salt, params.Iterations, params.MemoryKiB, params.Parallelism, chacha20poly1305.KeySize)
	aead, err := chacha20poly1305.NewX(k)
	if err != nil {
		return nil, fmt.Errorf("filerepo: %w", err)
	}
	return &derivedKey{params: params, salt: append([]byte(nil), salt...), aead: aead}, nil
}
