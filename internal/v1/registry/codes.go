package registry

import (
	"math/rand/v2"
	"regexp"
)

// Room codes are three uppercase letters followed by three digits, e.g.
// "ABC123". Short enough to read out in a classroom, large enough a space
// (26^3 * 10^3) that collisions are rare.
var codePattern = regexp.MustCompile(`^[A-Z]{3}[0-9]{3}$`)

// ValidCode reports whether code has the canonical room-code shape.
func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}

func randomCode() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	const digits = "0123456789"
	b := make([]byte, 6)
	for i := 0; i < 3; i++ {
		b[i] = letters[rand.IntN(len(letters))]
	}
	for i := 3; i < 6; i++ {
		b[i] = digits[rand.IntN(len(digits))]
	}
	return string(b)
}
