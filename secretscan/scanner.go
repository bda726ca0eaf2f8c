// Package secretscan scans decoded WAL record payloads for leaked
// credentials using trufflehog's detector registry. It is the
// downstream "audit" consumer spec.md §1 describes as an external
// collaborator: the decoder and tracker never import this package.
package secretscan

import (
	"context"
	"strings"

	"github.com/trufflesecurity/trufflehog/v3/pkg/detectors"
	"github.com/trufflesecurity/trufflehog/v3/pkg/engine/defaults"

	"github.com/nyx-wal/pgwal/wal"
)

// minScanLength mirrors the teacher's own "too short to be a secret"
// cutoff in pgdump/secrets.go.
const minScanLength = 8

// Finding is one detector hit against a WAL record's payload.
type Finding struct {
	DetectorName string            `json:"detector"`
	XID          uint32            `json:"xid"`
	Rmid         string            `json:"rmid"`
	Source       string            `json:"source"` // "main_data" or "block_data"
	BlockIndex   int               `json:"block_index,omitempty"`
	Raw          string            `json:"raw"`
	Redacted     string            `json:"redacted,omitempty"`
	Verified     bool              `json:"verified"`
	ExtraData    map[string]string `json:"extra_data,omitempty"`
}

// Scanner wraps trufflehog's detector set, grounded on
// pgdump/secrets.go's SecretScanner.
type Scanner struct {
	detectors []detectors.Detector
}

// New returns a Scanner with trufflehog's default detector set.
func New() *Scanner {
	return &Scanner{detectors: defaults.DefaultDetectors()}
}

// ScanBytes scans a single payload, unverified, returning raw
// trufflehog results. Grounded on SecretScanner.ScanString's
// keyword-prefilter-then-FromData loop.
func (s *Scanner) ScanBytes(data []byte) []detectors.Result {
	if len(data) < minScanLength {
		return nil
	}
	str := string(data)
	ctx := context.Background()

	var results []detectors.Result
	for _, d := range s.detectors {
		keywords := d.Keywords()
		hasKeyword := len(keywords) == 0
		for _, kw := range keywords {
			if strings.Contains(str, kw) || strings.Contains(strings.ToLower(str), strings.ToLower(kw)) {
				hasKeyword = true
				break
			}
		}
		if !hasKeyword {
			continue
		}

		found, err := d.FromData(ctx, false, data)
		if err != nil {
			continue
		}
		results = append(results, found...)
	}
	return results
}

// ScanRecord walks a decoded record's main data and every block
// reference's inline data, returning one Finding per detector hit.
// This is the redirection spec.md §1/SPEC_FULL.md §2 describes: the
// teacher scans decoded heap row values, this scans WAL payload bytes.
func (s *Scanner) ScanRecord(rec *wal.Record) []Finding {
	var findings []Finding

	for _, res := range s.ScanBytes(rec.MainData) {
		findings = append(findings, toFinding(rec, "main_data", -1, res))
	}

	for i, blk := range rec.Blocks {
		if len(blk.Data) == 0 {
			continue
		}
		for _, res := range s.ScanBytes(blk.Data) {
			findings = append(findings, toFinding(rec, "block_data", i, res))
		}
	}

	return findings
}

func toFinding(rec *wal.Record, source string, blockIndex int, res detectors.Result) Finding {
	f := Finding{
		DetectorName: res.DetectorType.String(),
		XID:          rec.XID,
		Rmid:         rec.Rmid.String(),
		Source:       source,
		Raw:          string(res.Raw),
		Redacted:     res.Redacted,
		Verified:     res.Verified,
		ExtraData:    res.ExtraData,
	}
	if blockIndex >= 0 {
		f.BlockIndex = blockIndex
	}
	return f
}
