package sstable

import "github.com/threatmetrix/cassandra2kv/internal/buffer"

// openDataSource opens the -Data.db file for cfg, using the chunked
// CompressedSource when a -CompressionInfo.db component is present and
// falling back to a plain UncompressedSource otherwise.
func openDataSource(cfg *TableConfig) buffer.Source {
	compInfo := cfg.Descriptor.ComponentPath("CompressionInfo")
	cs := buffer.OpenCompressed(cfg.Descriptor.ComponentPath("Data"), compInfo, cfg.Checksum, cfg.VerifyOnCompressed)
	if cs.Good() {
		return cs
	}
	cs.Close()
	return buffer.OpenUncompressed(cfg.Descriptor.ComponentPath("Data"))
}
