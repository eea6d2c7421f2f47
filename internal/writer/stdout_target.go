package writer

import (
	"context"
	"fmt"
	"unicode/utf8"
)

// StdoutTarget is the -D dry-run Target: it never opens a connection
// and instead prints one plain line per row rather than a structured
// log record.
type StdoutTarget struct{}

func (StdoutTarget) Upsert(_ context.Context, namespace, set string, record *Record, ttlSeconds int64, done func(UpsertStatus)) {
	fmt.Printf("%s.%s key=%s ttl=%d columns=%d\n", namespace, set, formatKey(record.Key), ttlSeconds, len(record.Columns))
	done(StatusSuccess)
}

func formatKey(key []byte) string {
	if utf8.Valid(key) {
		return string(key)
	}
	return fmt.Sprintf("%x", key)
}
