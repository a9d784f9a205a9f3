package model

type MFAMethod string

const (
	MFAMethodTOTP        MFAMethod = "totp"
	MFAMethodSMS         MFAMethod = "sms"
	MFAMethodEmail       MFAMethod = "email"
	MFAMethodHardwareKey MFAMethod = "hardware_key"
)

// MFAEnrollment is the enrollment handshake result. For TOTP the secret is
// staged server-side under a short TTL and only becomes the user's active
// factor after confirmation. SMS/email carry a Message instead of a secret.
type MFAEnrollment struct {
	Method          MFAMethod `json:"method"`
	Secret          string    `json:"secret,omitempty"`
	ProvisioningURI string    `json:"qr_code_data,omitempty"`
	QRCodePNG       string    `json:"qr_code_png,omitempty"`
	BackupCodes     []string  `json:"backup_codes,omitempty"`
	SetupExpiresIn  int       `json:"setup_expires_in"`
	Message         string    `json:"message,omitempty"`
}
