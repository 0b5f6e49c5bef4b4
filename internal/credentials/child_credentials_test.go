package credentials

import (
	"slices"
	"testing"
)

func TestGeneratePIN(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		pin, err := GeneratePIN()
		if err != nil {
			t.Fatalf("GeneratePIN() error = %v", err)
		}
		if len(pin) != PINLength {
			t.Errorf("pin length %d, want %d", len(pin), PINLength)
		}
		for _, c := range pin {
			if c < '0' || c > '9' {
				t.Errorf("pin %q contains non-digit %q", pin, c)
			}
		}
		seen[pin] = true
	}

	// 200 draws from 10000 values should not all collide
	if len(seen) < 100 {
		t.Errorf("only %d distinct pins in 200 draws", len(seen))
	}
}

func TestRandomAvatar(t *testing.T) {
	for i := 0; i < 50; i++ {
		avatar, err := RandomAvatar()
		if err != nil {
			t.Fatalf("RandomAvatar() error = %v", err)
		}
		if !slices.Contains(avatars, avatar) {
			t.Errorf("unexpected avatar %q", avatar)
		}
	}
}

func TestRandomElementEmpty(t *testing.T) {
	got, err := randomElement(nil)
	if err != nil || got != "" {
		t.Errorf("randomElement(nil) = %q, %v", got, err)
	}
}
