package writer

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"sync"

	"github.com/cockroachdb/errors"
)

// Checkpoint is a best-effort append-only log of recently-completed
// partition keys: append-under-mutex, length-prefixed records. Unlike
// a write-ahead log there is nothing to replay into memory — only the
// last record is read back, as a resume point for a crash that loses
// the in-memory retry queues (the -s/-S resumption hint is the primary
// mechanism; this is a fallback for a hard crash).
type Checkpoint struct {
	mu     sync.Mutex
	writer io.WriteCloser
	path   string
}

// OpenCheckpoint opens (creating if absent) an append-only checkpoint
// file at path.
func OpenCheckpoint(path string) (*Checkpoint, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "checkpoint: opening %q", path)
	}
	return &Checkpoint{writer: f, path: path}, nil
}

// Append records key as the most recently completed upsert.
func (c *Checkpoint) Append(key []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	buf := make([]byte, 0, 4+len(key))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(key)))
	buf = append(buf, key...)
	_, err := c.writer.Write(buf)
	return err
}

// LastKey scans the checkpoint file and returns the most recently
// appended key, used as a resume hint when no live retry queue
// survived the process (e.g. after a crash rather than a clean
// shutdown).
func LastKey(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "checkpoint: opening %q", path)
	}
	defer f.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, f); err != nil {
		return nil, errors.Wrapf(err, "checkpoint: reading %q", path)
	}

	var last []byte
	for buf.Len() >= 4 {
		lenBytes := buf.Next(4)
		keyLen := binary.LittleEndian.Uint32(lenBytes)
		if uint32(buf.Len()) < keyLen {
			break
		}
		last = append([]byte(nil), buf.Next(int(keyLen))...)
	}
	return last, nil
}

// Clear truncates the checkpoint, used once a run completes cleanly
// with no unresolved retries.
func (c *Checkpoint) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return os.Truncate(c.path, 0)
}

func (c *Checkpoint) Close() error {
	return c.writer.Close()
}
