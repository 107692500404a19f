package checkout

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"
)

const orderNumberAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewOrderNumber builds a human-readable order number: ORD-YYYYMMDD-XXXXX
// with a random base36 suffix. Collisions are possible and handled by the
// caller retrying on the unique constraint.
func NewOrderNumber(now time.Time) (string, error) {
	var b strings.Builder
	for i := 0; i < 5; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(orderNumberAlphabet))))
		if err != nil {
			return "", fmt.Errorf("order number entropy: %w", err)
		}
		b.WriteByte(orderNumberAlphabet[n.Int64()])
	}
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), strings.ToUpper(b.String())), nil
}
