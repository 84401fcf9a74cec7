package generate

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
)

// SidecarName is the merge map persisted next to lib.rs.
const SidecarName = ".rustify-merge.mp"

// Increment when the sidecar layout changes.
const sidecarSchema uint16 = 1

// sidecar is the persisted name → rendered block map. UnitHash pins it to
// the lib.rs it was written with, so a hand-edited unit is re-scanned instead.
type sidecar struct {
	Schema    uint16
	UnitHash  string
	Functions map[string]string
}

func unitHash(unit []byte) string {
	sum := sha256.Sum256(unit)
	return hex.EncodeToString(sum[:])
}

// readSidecar returns the stored merge map if it exists, matches the schema
// and was written alongside unit.
func readSidecar(path string, unit []byte) (map[string]string, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer f.Close()

	var sc sidecar
	if err := msgpack.NewDecoder(f).Decode(&sc); err != nil {
		return nil, false, fmt.Errorf("decoding %s: %w", path, err)
	}
	if sc.Schema != sidecarSchema || sc.UnitHash != unitHash(unit) {
		return nil, false, nil
	}
	if sc.Functions == nil {
		sc.Functions = map[string]string{}
	}
	return sc.Functions, true, nil
}

func writeSidecar(path string, unit []byte, functions map[string]string) error {
	data, err := msgpack.Marshal(&sidecar{
		Schema:    sidecarSchema,
		UnitHash:  unitHash(unit),
		Functions: functions,
	})
	if err != nil {
		return fmt.Errorf("encoding merge map: %w", err)
	}
	return writeFileAtomic(path, data)
}

// writeFileAtomic replaces path in one rename so a failed run never leaves a
// truncated artifact behind.
func writeFileAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
