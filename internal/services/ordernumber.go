package services

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"time"
)

const orderNumberCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewOrderNumber builds a reference of the form ORD<8 digits><3 chars>: the
// last eight digits of the unix millisecond clock followed by three random
// characters from [A-Z0-9] read from r.
func NewOrderNumber(now time.Time, r io.Reader) (string, error) {
	suffix := make([]byte, 3)
	max := big.NewInt(int64(len(orderNumberCharset)))
	for i := range suffix {
		n, err := rand.Int(r, max)
		if err != nil {
			return "", fmt.Errorf("generate order number: %w", err)
		}
		suffix[i] = orderNumberCharset[n.Int64()]
	}
	return fmt.Sprintf("ORD%08d%s", now.UnixMilli()%100_000_000, suffix), nil
}
