package usecase

// maxPaymentAmount caps a single KHQR payment at 50M riel, the provider's
// per-transaction ceiling.
const maxPaymentAmount = 50_000_000

// ValidateAmount checks that an amount is a payable riel value.
func ValidateAmount(amount int64) bool {
	return amount > 0 && amount <= maxPaymentAmount
}
