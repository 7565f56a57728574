package auth

import (
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const totpIssuer = "Simple Admin"

// GenerateTOTPSecret creates a new base32-encoded TOTP secret for username,
// along with the provisioning key (secret + otpauth:// URL for a QR code).
func GenerateTOTPSecret(username string) (*otp.Key, error) {
	return totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: username,
	})
}

// ValidateTOTPCode checks a 6-digit code against a base32 secret using the
// default RFC-6238 parameters (30s step, ±1 step skew).
func ValidateTOTPCode(secret, code string) bool {
	return totp.Validate(code, secret)
}
