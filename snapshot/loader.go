package snapshot

import (
	"encoding/gob"
	"os"

	"github.com/cockroachdb/errors"

	"waiterboard/domain/waiter"
)

// Load reads a snapshot written by Writer. A missing file is ErrNotFound.
func Load(path string) (Snapshot, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return Snapshot{}, errors.Wrapf(waiter.ErrNotFound, "snapshot %s", path)
	}
	if err != nil {
		return Snapshot{}, err
	}
	defer f.Close()

	var s Snapshot
	if err := gob.NewDecoder(f).Decode(&s); err != nil {
		return Snapshot{}, errors.Wrapf(err, "decode snapshot %s", path)
	}
	return s, nil
}
