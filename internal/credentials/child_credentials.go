package credentials

import (
	"crypto/rand"
	"math/big"
)

// Avatars offered to a new child profile when none is chosen
var avatars = []string{
	"🦊", "🐼", "🦁", "🐯", "🐻", "🐨", "🐸", "🐵",
	"🦄", "🐙", "🦖", "🐢", "🐬", "🦉", "🐝", "🦋",
	"🚀", "⚽", "🎸", "🌈", "⭐", "🍀", "🎨", "🛹",
}

// PINLength is the length of generated child PINs
const PINLength = 4

// GeneratePIN generates a random numeric PIN of PINLength digits
func GeneratePIN() (string, error) {
	const digits = "0123456789"
	pin := make([]byte, PINLength)

	for i := range pin {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(digits))))
		if err != nil {
			return "", err
		}
		pin[i] = digits[num.Int64()]
	}

	return string(pin), nil
}

// RandomAvatar picks a random avatar
func RandomAvatar() (string, error) {
	return randomElement(avatars)
}

// randomElement picks a random element from a string slice
func randomElement(slice []string) (string, error) {
	if len(slice) == 0 {
		return "", nil
	}

	num, err := rand.Int(rand.Reader, big.NewInt(int64(len(slice))))
	if err != nil {
		return "", err
	}

	return slice[num.Int64()], nil
}
