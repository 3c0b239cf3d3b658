// Package bond persists pairing key material across power cycles.
//
// The store is the firmware's stand-in for non-volatile key storage: loaded
// once at boot, rewritten only after a successful pairing, cleared on
// explicit re-pairing.
package bond

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"lookpoint-fw/internal/link"
)

// KeyMaterial is the symmetric key state of one bonded relationship.
type KeyMaterial struct {
	Peer      link.PeerID
	LTK       [16]byte
	CreatedAt time.Time
}

type fileForm struct {
	Peer      string    `yaml:"peer"`
	LTK       string    `yaml:"ltk"`
	CreatedAt time.Time `yaml:"created_at"`
}

type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads persisted key material. Returns (nil, nil) when no bond exists.
// A corrupt file is an error: silently discarding a bond would strand the
// peer with a key we no longer hold.
func (s *Store) Load() (*KeyMaterial, error) {
	b, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("bond: read %s: %w", s.path, err)
	}

	var f fileForm
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("bond: parse %s: %w", s.path, err)
	}

	peer, err := link.ParsePeerID(f.Peer)
	if err != nil {
		return nil, fmt.Errorf("bond: %w", err)
	}
	raw, err := hex.DecodeString(f.LTK)
	if err != nil || len(raw) != 16 {
		return nil, fmt.Errorf("bond: invalid ltk in %s", s.path)
	}

	km := &KeyMaterial{Peer: peer, CreatedAt: f.CreatedAt}
	copy(km.LTK[:], raw)
	return km, nil
}

// Save writes key material atomically (temp file + rename) so a power cut
// mid-write leaves either the old bond or the new one, never a torn file.
func (s *Store) Save(km KeyMaterial) error {
	f := fileForm{
		Peer:      km.Peer.String(),
		LTK:       hex.EncodeToString(km.LTK[:]),
		CreatedAt: km.CreatedAt.UTC(),
	}
	b, err := yaml.Marshal(&f)
	if err != nil {
		return fmt.Errorf("bond: marshal: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".bond-*")
	if err != nil {
		return fmt.Errorf("bond: temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("bond: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("bond: close: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("bond: rename: %w", err)
	}
	return nil
}

// Clear removes the persisted bond. Removing a bond that does not exist is
// not an error.
func (s *Store) Clear() error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("bond: clear %s: %w", s.path, err)
	}
	return nil
}
