package wal

import "testing"

func TestRmgrIDString(t *testing.T) {
	tests := []struct {
		id   RmgrID
		want string
	}{
		{RmgrXLOG, "XLOG"},
		{RmgrTransaction, "Transaction"},
		{RmgrHeap, "Heap"},
		{RmgrHeap3, "Heap3"},
		{RmgrID(25), "Unknown(25)"},
		{RmgrID(255), "Unknown(255)"},
	}

	for _, tt := range tests {
		if got := tt.id.String(); got != tt.want {
			t.Errorf("RmgrID(%d).String() = %q, want %q", tt.id, got, tt.want)
		}
	}
}
