package ir

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/vmihailenco/msgpack/v5"
)

// Digest identifies the content of a unit.
type Digest [32]byte

// Load reads a unit from disk. Files ending in ".toml" are hand-authored units;
// anything else is read as the binary msgpack encoding.
func Load(path string) (*Unit, error) {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		var u Unit
		md, err := toml.DecodeFile(path, &u)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("%s: unknown keys %v", path, undecoded)
		}
		if u.Name == "" {
			u.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}
		return &u, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	u, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return u, nil
}

// Decode reads one msgpack-encoded unit.
func Decode(r io.Reader) (*Unit, error) {
	var u Unit
	if err := msgpack.NewDecoder(r).Decode(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Encode writes the msgpack encoding of u.
func Encode(w io.Writer, u *Unit) error {
	if u == nil {
		return errors.New("nil unit")
	}
	return msgpack.NewEncoder(w).Encode(u)
}

// Save writes u to path atomically.
func Save(path string, u *Unit) error {
	f, err := os.CreateTemp(filepath.Dir(path), "tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())
	if err := Encode(f, u); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}

// Digest returns the sha256 of the unit's binary encoding.
func (u *Unit) Digest() (Digest, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, u); err != nil {
		return Digest{}, err
	}
	return sha256.Sum256(buf.Bytes()), nil
}
