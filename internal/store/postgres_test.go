package store

import "testing"

func TestValidUUID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want bool
	}{
		{"canonical uuid", "a2f6c1de-9b1f-4e6c-8a6b-0f3c2d1e4a5b", true},
		{"empty", "", false},
		{"garbage", "not-a-uuid", false},
		{"prefixed id", "dlv_a2f6c1de-9b1f-4e6c-8a6b-0f3c2d1e4a5b", false},
		{"truncated", "a2f6c1de-9b1f-4e6c", false},
		{"sql noise", "1'; DROP TABLE deliveries;--", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := validUUID(tt.id); got != tt.want {
				t.Errorf("validUUID(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}
