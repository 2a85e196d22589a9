package hexutil

import "testing"

func TestIsZero(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"", true},
		{"0x", true},
		{"0x0", true},
		{"0x" + "0000000000000000000000000000000000000000000000000000000000000000", true},
		{"0X00", true},
		{"0x01", false},
		{"0x0000000000000000000000000000000000000000000000000000000000000a00", false},
		{"0xzz", false},
	}

	for _, tt := range tests {
		if got := IsZero(tt.in); got != tt.want {
			t.Errorf("IsZero(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
