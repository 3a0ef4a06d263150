package integrity

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
)

// Hash computes the internal tamper-evidence value for a payment attempt.
// It is independent of the provider's verification digest and is never sent
// upstream.
func Hash(orderID int64, amount int64, currency, secret string) string {
	data := fmt.Sprintf("%d-%d-%s-%s", orderID, amount, currency, secret)
	sum := md5.Sum([]byte(data))
	return hex.EncodeToString(sum[:])
}
