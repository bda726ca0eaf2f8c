package wal

import "fmt"

// CorruptPage describes a page whose short header failed validation.
// It is recoverable: the decoder advances past it and continues with
// the following page.
type CorruptPage struct {
	Offset int64
	Reason string
}

func (e *CorruptPage) Error() string {
	return fmt.Sprintf("wal: corrupt page at offset %d: %s", e.Offset, e.Reason)
}

// MalformedRecord describes a record whose length prefix cannot be
// reconciled with the bytes remaining in the segment. It terminates
// the current segment's iteration.
type MalformedRecord struct {
	Offset int64
	Reason string
}

func (e *MalformedRecord) Error() string {
	return fmt.Sprintf("wal: malformed record at offset %d: %s", e.Offset, e.Reason)
}

// TruncatedRecord describes a record body that runs past the end of
// the segment with no continuation available.
type TruncatedRecord struct {
	Offset     int64
	WantBytes  int
	AvailBytes int
}

func (e *TruncatedRecord) Error() string {
	return fmt.Sprintf("wal: truncated record at offset %d: wanted %d bytes, %d available",
		e.Offset, e.WantBytes, e.AvailBytes)
}
