// pgwaldump - decode PostgreSQL WAL segment files and reassemble a
// transaction-grouped record stream.
//
// Usage:
//
//	pgwaldump -d /path/to/pg_wal/               # decode every segment in a directory
//	pgwaldump -f 000000010000000000000001       # decode a single segment
//	pgwaldump -f seg -range 0/100-0/300          # bound decoding to an LSN range
//	pgwaldump -f seg -scan-secrets               # also scan payloads for leaked credentials
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/nyx-wal/pgwal/lsn"
	"github.com/nyx-wal/pgwal/secretscan"
	"github.com/nyx-wal/pgwal/wal"
	"github.com/nyx-wal/pgwal/xact"
)

// Config mirrors the teacher's flag-driven Config struct in main.go.
type Config struct {
	WalDir      string
	SingleFile  string
	RangeStr    string
	ScanSecrets bool
	Verbose     bool
}

// Summary is the JSON document printed on stdout, mirroring the
// teacher's DatabaseDump/TableResult output shape.
type Summary struct {
	SegmentsRead int                  `json:"segments_read"`
	RecordStats  xact.Stats           `json:"transaction_stats"`
	Committed    []uint32             `json:"committed_xids"`
	Aborted      []uint32             `json:"aborted_xids"`
	Findings     []secretscan.Finding `json:"secret_findings,omitempty"`
}

func main() {
	cfg := parseFlags()

	var segments []string
	if cfg.SingleFile != "" {
		segments = []string{cfg.SingleFile}
	} else if cfg.WalDir != "" {
		var err error
		segments, err = discoverSegments(cfg.WalDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	} else {
		fmt.Fprintln(os.Stderr, "Error: -d (WAL directory) or -f (single segment) required")
		flag.Usage()
		os.Exit(1)
	}

	var rng *wal.RecordRange
	if cfg.RangeStr != "" {
		start, end, err := lsn.ParseRange(cfg.RangeStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid -range: %v\n", err)
			os.Exit(1)
		}
		rng = &wal.RecordRange{StartLSN: &start, EndLSN: &end}
	}

	summary := decodeAll(cfg, segments, rng)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(summary)
}

func parseFlags() Config {
	cfg := Config{}

	flag.StringVar(&cfg.WalDir, "d", "", "directory of WAL segment files, read in ascending file-id order")
	flag.StringVar(&cfg.SingleFile, "f", "", "single WAL segment file")
	flag.StringVar(&cfg.RangeStr, "range", "", "LSN range to decode, e.g. 0/100-0/300")
	flag.BoolVar(&cfg.ScanSecrets, "scan-secrets", false, "scan decoded record payloads for leaked credentials")
	flag.BoolVar(&cfg.Verbose, "v", false, "verbose output")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `pgwaldump - decode PostgreSQL WAL segments and reassemble transactions

Usage:
  %s -d /path/to/pg_wal/               # decode every segment in a directory
  %s -f 000000010000000000000001       # decode a single segment
  %s -f seg -range 0/100-0/300          # bound decoding to an LSN range
  %s -f seg -scan-secrets               # also scan payloads for leaked credentials

Options:
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0])
		flag.PrintDefaults()
	}

	flag.Parse()
	return cfg
}

// segmentNamePattern matches the 24-hex-digit WAL segment filename:
// an 8-digit timeline id followed by a 16-digit segment number.
var segmentNamePattern = regexp.MustCompile(`^[0-9A-Fa-f]{24}$`)

// discoverSegments lists and sorts every WAL segment filename in dir,
// mirroring core/xlog_reader.py's XLogSegmentReader._find_segment_files,
// kept as cmd-level logic per spec.md §5 ("the multi-segment reader is
// an external collaborator").
func discoverSegments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read WAL directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !segmentNamePattern.MatchString(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	out := make([]string, len(names))
	for i, n := range names {
		out[i] = filepath.Join(dir, n)
	}
	return out, nil
}

// segmentBaseLSN derives a segment's base LSN from its 24-hex-digit
// filename: {timeline:08X}{segno_hi:08X}{segno_lo:08X}. This resolves
// spec.md §9's Open Question about `_current_lsn` conflating a raw
// byte offset with a full LSN — the caller combines this base with
// SegmentDecoder's intra-segment offset. Grounded on
// pgdump/control.go's formatWALFilename, inverted.
func segmentBaseLSN(path string, segSize uint64) (lsn.LSN, error) {
	name := filepath.Base(path)
	if !segmentNamePattern.MatchString(name) {
		return 0, fmt.Errorf("segment filename %q is not a 24-hex-digit WAL name", name)
	}

	var tli uint32
	var segHi, segLo uint32
	if _, err := fmt.Sscanf(name[0:8], "%08X", &tli); err != nil {
		return 0, fmt.Errorf("parse timeline from %q: %w", name, err)
	}
	if _, err := fmt.Sscanf(name[8:16], "%08X", &segHi); err != nil {
		return 0, fmt.Errorf("parse segno high from %q: %w", name, err)
	}
	if _, err := fmt.Sscanf(name[16:24], "%08X", &segLo); err != nil {
		return 0, fmt.Errorf("parse segno low from %q: %w", name, err)
	}

	segNo := uint64(segHi)<<32 | uint64(segLo)
	return lsn.LSN(segNo * segSize), nil
}

func decodeAll(cfg Config, segments []string, rng *wal.RecordRange) Summary {
	tracker := xact.New()
	var scanner *secretscan.Scanner
	if cfg.ScanSecrets {
		scanner = secretscan.New()
	}

	var findings []secretscan.Finding
	segmentsRead := 0

	for _, path := range segments {
		baseLSN, err := segmentBaseLSN(path, wal.DefaultSegmentSize)
		if err != nil {
			if cfg.Verbose {
				fmt.Fprintf(os.Stderr, "[*] %v (base LSN 0)\n", err)
			}
		}

		dec, err := wal.OpenSegment(path, wal.Options{BaseLSN: baseLSN})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening %s: %v\n", path, err)
			continue
		}

		var recordRange wal.RecordRange
		if rng != nil {
			recordRange = *rng
		}

		for item := range dec.Records(recordRange) {
			if item.Err != nil {
				if cfg.Verbose {
					fmt.Fprintf(os.Stderr, "[*] %s: %v\n", path, item.Err)
				}
				continue
			}
			if err := tracker.Process(item.Record); err != nil && cfg.Verbose {
				fmt.Fprintf(os.Stderr, "[*] %s: %v\n", path, err)
			}
			if scanner != nil {
				findings = append(findings, scanner.ScanRecord(item.Record)...)
			}
		}

		dec.Close()
		segmentsRead++
	}

	return Summary{
		SegmentsRead: segmentsRead,
		RecordStats:  tracker.Stats(),
		Committed:    tracker.CommittedXIDs(),
		Aborted:      tracker.AbortedXIDs(),
		Findings:     findings,
	}
}
