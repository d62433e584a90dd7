package units

import "testing"

func TestHumanSize(t *testing.T) {
	tests := []struct {
		size float64
		want string
	}{
		{size: 0, want: "0B"},
		{size: 999, want: "999B"},
		{size: 1000, want: "1kB"},
		{size: 1024, want: "1.02kB"},
		{size: 44.2 * MB, want: "44.2MB"},
		{size: 3 * GB, want: "3GB"},
	}
	for _, tt := range tests {
		if got := HumanSize(tt.size); got != tt.want {
			t.Errorf("HumanSize(%v) = %q, want %q", tt.size, got, tt.want)
		}
	}
}

func TestBytesSize(t *testing.T) {
	tests := []struct {
		size float64
		want string
	}{
		{size: 512, want: "512B"},
		{size: KiB, want: "1KiB"},
		{size: 1.5 * MiB, want: "1.5MiB"},
	}
	for _, tt := range tests {
		if got := BytesSize(tt.size); got != tt.want {
			t.Errorf("BytesSize(%v) = %q, want %q", tt.size, got, tt.want)
		}
	}
}
