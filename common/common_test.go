package common

import "testing"

func TestStructToBytesSize(t *testing.T) {
	type dims struct {
		A, B, C, D uint32
	}
	d := dims{1, 2, 3, 4}
	got := StructToBytes(&d)
	if len(got) != 16 {
		t.Fatalf("StructToBytes() length = %d, want 16", len(got))
	}
	// Little-endian field order: the first byte of each u32 carries its low byte.
	if got[0] != 1 || got[4] != 2 || got[8] != 3 || got[12] != 4 {
		t.Errorf("field bytes = %d %d %d %d, want 1 2 3 4", got[0], got[4], got[8], got[12])
	}
}

func TestStructToBytesSharesMemory(t *testing.T) {
	type v struct{ X uint32 }
	s := v{X: 7}
	b := StructToBytes(&s)
	b[0] = 9
	if s.X != 9 {
		t.Errorf("mutation through the byte view not visible: X = %d, want 9", s.X)
	}
}

func TestCoalesce(t *testing.T) {
	if got := Coalesce(0, 0, 5, 3); got != 5 {
		t.Errorf("Coalesce(0,0,5,3) = %d, want 5", got)
	}
	if got := Coalesce("", "a"); got != "a" {
		t.Errorf("Coalesce(\"\",\"a\") = %q, want %q", got, "a")
	}
	if got := Coalesce(0, 0); got != 0 {
		t.Errorf("Coalesce(0,0) = %d, want 0", got)
	}
}
