package backup

import (
	"testing"
	"time"
)

func TestValidateKeyFormat(t *testing.T) {
	tests := []struct {
		format string
		valid  bool
	}{
		{"Y-m-d_H:M:S", true},
		{"YmdHMS", true},
		{"Y-m-d", true},
		{"Y-m-d_H:M:S.f", true},
		{"Y", true},
		// no time verb at all
		{"", false},
		{"backup", false},
		// verbs must start at the year and step down without gaps or repeats
		{"m-d", false},
		{"Y-d", false},
		{"Y-m-m", false},
		{"d-m-Y", false},
		{"Y-m-d S", false},
	}

	for _, tt := range tests {
		err := ValidateKeyFormat(tt.format)
		if tt.valid && err != nil {
			t.Errorf("ValidateKeyFormat(%q) = %v, want nil", tt.format, err)
		}
		if !tt.valid && err == nil {
			t.Errorf("ValidateKeyFormat(%q) = nil, want error", tt.format)
		}
	}
}

func TestBuildKey(t *testing.T) {
	ts := time.Date(2024, time.March, 7, 9, 5, 2, 123456000, time.UTC)

	got := BuildKey("Y-m-d_H:M:S.f", ts)
	want := "2024-03-07_09:05:02.123456"
	if got != want {
		t.Errorf("BuildKey = %q, want %q", got, want)
	}
}

func TestKeyOrdering(t *testing.T) {
	// a year rollover exercises every field at once
	t1 := time.Date(2024, time.December, 31, 23, 59, 59, 0, time.UTC)
	t2 := t1.Add(time.Second)

	k1 := BuildKey("Y-m-d_H-M-S", t1)
	k2 := BuildKey("Y-m-d_H-M-S", t2)
	if k1 >= k2 {
		t.Errorf("keys out of order: %s should sort before %s", k1, k2)
	}
}
