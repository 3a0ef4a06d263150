package errors

import "errors"

var (
	ErrAlreadyExists      = errors.New("already exists")
	ErrNotFound           = errors.New("not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidState       = errors.New("order state does not permit operation")
	ErrInvalidAmount      = errors.New("invalid amount")

	// ErrIssuanceUnavailable covers transport failures talking to the QR issuer.
	ErrIssuanceUnavailable = errors.New("qr issuance unavailable")
	// ErrIssuanceRejected marks a structurally incomplete issuer response.
	ErrIssuanceRejected = errors.New("qr issuance rejected")
	// ErrOracleUnavailable covers transport failures talking to the payment oracle.
	ErrOracleUnavailable = errors.New("payment oracle unavailable")
	// ErrOracleUnauthorized means the oracle rejected our credentials.
	ErrOracleUnauthorized = errors.New("payment oracle rejected credentials")
)
