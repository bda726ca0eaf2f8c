package secretscan

import (
	"crypto/rand"
	"encoding/hex"
	"testing"

	"github.com/nyx-wal/pgwal/wal"
)

func generateRandomHex(length int) string {
	b := make([]byte, length/2)
	rand.Read(b)
	return hex.EncodeToString(b)
}

func generateTestToken(prefix string, suffixLen int) string {
	return prefix + generateRandomHex(suffixLen)
}

func TestScannerScanBytes(t *testing.T) {
	scanner := New()

	tests := []struct {
		name     string
		input    string
		wantFind bool
	}{
		{"Stripe Live Key", generateTestToken("sk_live_51", 40), true},
		{"GitLab PAT", generateTestToken("glpat-", 20), true},
		{"Regular text", "Hello, this is just regular text without any secrets", false},
		{"Short string", "abc", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := scanner.ScanBytes([]byte(tt.input))
			found := len(results) > 0
			if found != tt.wantFind {
				t.Errorf("ScanBytes(%q): found=%v, want=%v", tt.input, found, tt.wantFind)
			}
		})
	}
}

func TestScannerScanRecord(t *testing.T) {
	scanner := New()
	token := generateTestToken("sk_live_51", 40)

	rec := &wal.Record{
		XID:      42,
		Rmid:     wal.RmgrHeap,
		MainData: []byte(token),
		Blocks: []wal.BlockRef{
			{Data: []byte("just some ordinary block payload with no secrets inside")},
		},
	}

	findings := scanner.ScanRecord(rec)
	if len(findings) == 0 {
		t.Fatalf("expected at least one finding from main data")
	}
	for _, f := range findings {
		if f.Source != "main_data" {
			t.Errorf("expected finding to come from main_data, got %s", f.Source)
		}
		if f.XID != 42 {
			t.Errorf("expected XID 42, got %d", f.XID)
		}
	}
}

func TestScannerScanRecordEmpty(t *testing.T) {
	scanner := New()
	rec := &wal.Record{XID: 1, Rmid: wal.RmgrXLOG}
	if findings := scanner.ScanRecord(rec); len(findings) != 0 {
		t.Errorf("expected no findings for empty record, got %d", len(findings))
	}
}
