package lsn

import "testing"

func TestStringRoundTrip(t *testing.T) {
	tests := []string{
		"0/0",
		"0/16B37B0",
		"FFFFFFFF/FFFFFFFF",
		"1/1",
		"A/B",
	}

	for _, s := range tests {
		v, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", s, err)
		}
		if got := v.String(); got != s {
			t.Errorf("Parse(%q).String() = %q, want %q", s, got, s)
		}
	}
}

func TestParseEmptyHighMeansZero(t *testing.T) {
	v, err := Parse("/1A")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if v.FileID() != 0 || v.Offset() != 0x1A {
		t.Errorf("Parse(\"/1A\") = {file=%d offset=%#x}, want {0, 0x1A}", v.FileID(), v.Offset())
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []string{"", "nosep", "0/", "zz/zz"}
	for _, s := range tests {
		if _, err := Parse(s); err == nil {
			t.Errorf("Parse(%q): want error, got nil", s)
		}
	}
}

func TestFileIDAndOffset(t *testing.T) {
	v := LSN(0x0000000100000050)
	if v.FileID() != 1 {
		t.Errorf("FileID() = %d, want 1", v.FileID())
	}
	if v.Offset() != 0x50 {
		t.Errorf("Offset() = %#x, want 0x50", v.Offset())
	}
}

func TestOrderingIsNumeric(t *testing.T) {
	a := LSN(100)
	b := LSN(200)
	if !(a < b) {
		t.Error("expected a < b over raw 64-bit value")
	}
}

func TestDistanceSameFile(t *testing.T) {
	a, _ := Parse("0/100")
	b, _ := Parse("0/300")

	d, err := a.Distance(b)
	if err != nil {
		t.Fatalf("Distance failed: %v", err)
	}
	if d != 0x200 {
		t.Errorf("Distance = %#x, want 0x200", d)
	}

	// Symmetric.
	d2, err := b.Distance(a)
	if err != nil {
		t.Fatalf("Distance failed: %v", err)
	}
	if d2 != d {
		t.Errorf("Distance not symmetric: %#x vs %#x", d, d2)
	}
}

func TestDistanceCrossFileFails(t *testing.T) {
	a, _ := Parse("0/100")
	b, _ := Parse("1/100")

	if _, err := a.Distance(b); err == nil {
		t.Error("Distance across files: want error, got nil")
	}
}

func TestNextSegmentAndBoundary(t *testing.T) {
	const segSize = 16 * 1024 * 1024

	start := LSN(0)
	if !start.IsSegmentBoundary(segSize) {
		t.Error("LSN 0 should be a segment boundary")
	}

	mid := LSN(segSize / 2)
	if mid.IsSegmentBoundary(segSize) {
		t.Error("mid-segment LSN should not be a boundary")
	}

	next := mid.NextSegment(segSize)
	if next.Offset() != segSize {
		t.Errorf("NextSegment offset = %#x, want %#x", next.Offset(), segSize)
	}
	if !next.IsSegmentBoundary(segSize) {
		t.Error("NextSegment() result should itself be a boundary")
	}

	// NextSegment of an exact boundary lands on the following segment,
	// not the current one.
	next2 := next.NextSegment(segSize)
	if next2.Offset() != 2*segSize {
		t.Errorf("NextSegment of a boundary = %#x, want %#x", next2.Offset(), 2*segSize)
	}
}

func TestParseRangeRoundTrip(t *testing.T) {
	start, end, err := ParseRange("0/100-0/300")
	if err != nil {
		t.Fatalf("ParseRange failed: %v", err)
	}
	if start.String() != "0/100" || end.String() != "0/300" {
		t.Errorf("ParseRange = {%s, %s}, want {0/100, 0/300}", start, end)
	}
	if got := FormatRange(start, end); got != "0/100-0/300" {
		t.Errorf("FormatRange = %q, want %q", got, "0/100-0/300")
	}
}

func TestParseRangeInvalid(t *testing.T) {
	tests := []string{"", "0/100", "0/100-", "-0/100"}
	for _, s := range tests {
		if _, _, err := ParseRange(s); err == nil {
			t.Errorf("ParseRange(%q): want error, got nil", s)
		}
	}
}
