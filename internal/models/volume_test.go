package models

import "testing"

func TestVolumeIndexing(t *testing.T) {
	v := NewVolume(4, 3, 2)
	v.Set(3, 2, 1, 7)

	if got := v.At(3, 2, 1); got != 7 {
		t.Errorf("At(3,2,1) = %v, want 7", got)
	}
	if idx := v.Index(3, 2, 1); idx != len(v.Data)-1 {
		t.Errorf("Index of last voxel = %d, want %d", idx, len(v.Data)-1)
	}
	if v.Contains(4, 0, 0) || v.Contains(0, -1, 0) {
		t.Error("Contains accepted out of range coordinates")
	}
	if got := v.AtClamped(10, 10, 10); got != 7 {
		t.Errorf("AtClamped beyond extent = %v, want 7", got)
	}

	c := v.Clone()
	c.Set(0, 0, 0, 1)
	if v.At(0, 0, 0) != 0 {
		t.Error("Clone shares data with original")
	}
}
