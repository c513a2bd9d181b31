package snapshot

import (
	"encoding/gob"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"

	"waiterboard/domain/waiter"
)

type Writer struct {
	Dir string
}

// Write replaces Dir/snapshot.bin. The file is written beside the target and
// renamed so readers never see a partial snapshot.
func (w *Writer) Write(seq uint64, created time.Time, orders []waiter.Order, s waiter.Settings) (string, error) {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "snapshot dir %s", w.Dir)
	}

	path := filepath.Join(w.Dir, FileName)
	tmp, err := os.CreateTemp(w.Dir, FileName+".*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	snap := Snapshot{
		Seq:      seq,
		Created:  created,
		Settings: s,
		Orders:   orders,
	}
	if err := gob.NewEncoder(tmp).Encode(&snap); err != nil {
		tmp.Close()
		return "", errors.Wrap(err, "encode snapshot")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	return path, os.Rename(tmp.Name(), path)
}
