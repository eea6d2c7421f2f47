// Command cassandra2kv merges one or more Cassandra SSTable directories
// and exports every live row to an external key/value store (or to
// stdout in dry-run mode).
package main

import (
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/threatmetrix/cassandra2kv/internal/merge"
	"github.com/threatmetrix/cassandra2kv/internal/sstable"
	"github.com/threatmetrix/cassandra2kv/internal/writer"
)

var logger = log.New(os.Stderr, "cassandra2kv: ", log.LstdFlags)

type options struct {
	dirs        []string
	hosts       []string
	set         string
	namespace   string
	disableChecksum bool
	workers     int
	maxInFlight int
	resumeASCII string
	resumeHex   string
	minTTL      int64
	forbidEternal bool
	nearestExpiry bool
	user        string
	password    string
	dryRun      bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var o options
	cmd := &cobra.Command{
		Use:   "cassandra2kv",
		Short: "Export live rows out of Cassandra SSTables into a key/value store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(&o)
		},
	}

	flags := cmd.Flags()
	flags.StringArrayVarP(&o.dirs, "input", "i", nil, "Cassandra SSTable directory (repeatable)")
	flags.StringArrayVarP(&o.hosts, "host", "h", nil, "target-store seed host[:port] (repeatable)")
	flags.StringVarP(&o.set, "set", "t", "", "target set name (default: derived from SSTable)")
	flags.StringVarP(&o.namespace, "namespace", "n", "", "target namespace (default: derived from SSTable)")
	flags.BoolVarP(&o.disableChecksum, "no-checksum", "C", false, "disable per-chunk checksum verification")
	flags.IntVarP(&o.workers, "event-loops", "e", 4, "number of event loops / workers")
	flags.IntVarP(&o.maxInFlight, "max-in-flight", "a", 100, "max in-flight upserts per worker")
	flags.StringVarP(&o.resumeASCII, "resume", "s", "", "resume at printable-ASCII key")
	flags.StringVarP(&o.resumeHex, "resume-hex", "S", "", "resume at hex-encoded key")
	flags.Int64VarP(&o.minTTL, "min-ttl", "L", 0, "drop rows with ttl below this many seconds")
	flags.BoolVarP(&o.forbidEternal, "forbid-eternal", "x", false, "forbid eternal records; use namespace default TTL instead")
	flags.BoolVarP(&o.nearestExpiry, "nearest-expiry", "f", false, "use nearest (min) column expiration rather than farthest")
	flags.StringVarP(&o.user, "user", "u", "", "target-store username")
	flags.StringVarP(&o.password, "password", "p", "", "target-store password")
	flags.BoolVarP(&o.dryRun, "dry-run", "D", false, "print rows to stdout instead of connecting to a store")

	return cmd
}

func run(o *options) error {
	if len(o.dirs) == 0 {
		return errors.New("cassandra2kv: at least one -i directory is required")
	}
	if (o.user == "") != (o.password == "") {
		return errors.New("cassandra2kv: -u and -p must both be given or both omitted")
	}
	if !o.dryRun && len(o.hosts) == 0 {
		return errors.New("cassandra2kv: -h is required unless -D (dry run) is set")
	}
	if o.resumeASCII != "" && o.resumeHex != "" {
		return errors.New("cassandra2kv: -s and -S are mutually exclusive")
	}

	dataFiles, err := discoverDataFiles(o.dirs)
	if err != nil {
		return err
	}

	configs, err := sstable.Resolve(dataFiles)
	if err != nil {
		return errors.Wrap(err, "cassandra2kv: resolving SSTable metadata")
	}
	if len(configs) == 0 {
		return errors.New("cassandra2kv: no readable SSTables found")
	}

	resumeKey, err := resolveResumeKey(o)
	if err != nil {
		return err
	}

	namespace, set := o.namespace, o.set
	if namespace == "" {
		namespace = configs[0].Descriptor.Keyspace
	}
	if set == "" {
		set = configs[0].Descriptor.Table
	}

	cursors := make([]sstable.Cursor, 0, len(configs))
	for _, cfg := range configs {
		if o.disableChecksum {
			cfg.VerifyOnCompressed = false
		}
		if resumeKey != nil {
			cfg.StartOffset = sstable.SeekToKey(cfg, cfg.Partitioner.AssignToken(resumeKey), resumeKey)
		}
		cur, err := sstable.Open(cfg)
		if err != nil {
			logger.Printf("skipping %s: %v", cfg.Descriptor.ComponentPath("Data"), err)
			continue
		}
		cursors = append(cursors, cur)
	}
	if len(cursors) == 0 {
		return errors.New("cassandra2kv: every SSTable failed to open")
	}

	iter := merge.NewIterator(configs[0].Partitioner, cursors)

	target, err := newTarget(o)
	if err != nil {
		return err
	}

	expiryPolicy := writer.ExpiryFarthest
	if o.nearestExpiry {
		expiryPolicy = writer.ExpiryNearest
	}
	eternalTTL := writer.EternalNoExpire
	if o.forbidEternal {
		eternalTTL = writer.EternalStoreDefault
	}

	pool := writer.NewPool(iter, target, namespace, set, o.workers, o.maxInFlight, expiryPolicy, eternalTTL, 0, o.minTTL)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Printf("signal received, draining in-flight requests")
		pool.Terminate()
	}()

	pool.Run(nil)

	counters := pool.Counters()
	skipped := counters.Skipped + counters.Expired
	fmt.Printf("Exported %d, failed %d, skipped %d (deleted/expired), skipped %d (already present)\n",
		counters.Read-skipped-counters.Existing-counters.Failed, counters.Failed, skipped, counters.Existing)

	if key, ok := pool.ResumeKey(); ok && len(key) > 0 {
		printResumeHint(key)
	}
	return nil
}

func discoverDataFiles(dirs []string) ([]string, error) {
	var files []string
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, errors.Wrapf(err, "cassandra2kv: reading directory %q", dir)
		}
		for _, e := range entries {
			name := e.Name()
			if len(name) > len("-Data.db") && name[len(name)-len("-Data.db"):] == "-Data.db" {
				files = append(files, dir+string(os.PathSeparator)+name)
			}
		}
	}
	if len(files) == 0 {
		return nil, errors.New("cassandra2kv: no -Data.db files found under the given directories")
	}
	return files, nil
}

func resolveResumeKey(o *options) ([]byte, error) {
	switch {
	case o.resumeASCII != "":
		return []byte(o.resumeASCII), nil
	case o.resumeHex != "":
		key, err := hex.DecodeString(o.resumeHex)
		if err != nil {
			return nil, errors.Wrap(err, "cassandra2kv: -S is not valid even-length hex")
		}
		return key, nil
	default:
		return nil, nil
	}
}

func newTarget(o *options) (writer.Target, error) {
	if o.dryRun {
		return writer.StdoutTarget{}, nil
	}
	return nil, errors.New("cassandra2kv: live upsert target is not wired in this build; use -D for dry-run export")
}

func printResumeHint(key []byte) {
	if isPrintable(key) {
		fmt.Printf("resume with -s %q\n", string(key))
	} else {
		fmt.Printf("resume with -S %s\n", hex.EncodeToString(key))
	}
}

func isPrintable(key []byte) bool {
	if !utf8.Valid(key) {
		return false
	}
	for _, b := range key {
		if b < 0x20 || b > 0x7e {
			return false
		}
	}
	return true
}
