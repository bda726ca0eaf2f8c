package lsn

import "fmt"

// InvalidTextError is returned when Parse is given a string that does
// not match the HIGH/LOW hex form.
type InvalidTextError struct {
	Text string
}

func (e *InvalidTextError) Error() string {
	return fmt.Sprintf("lsn: invalid text form %q", e.Text)
}

// CrossFileDistanceError is returned by Distance when the two LSNs
// belong to different WAL files.
type CrossFileDistanceError struct {
	A, B uint32 // file ids
}

func (e *CrossFileDistanceError) Error() string {
	return fmt.Sprintf("lsn: cannot compute distance across files %08X and %08X", e.A, e.B)
}
