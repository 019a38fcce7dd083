package supervisor

import (
	"crypto/rand"
	"math/big"
)

const orderIDAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
const orderIDLength = 12

// newClientOrderID generates a 12-character alphanumeric client order id.
func newClientOrderID() (string, error) {
	out := make([]byte, orderIDLength)
	max := big.NewInt(int64(len(orderIDAlphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = orderIDAlphabet[n.Int64()]
	}
	return string(out), nil
}
