package constants

// Credential encryption parameters. The salts are build-time constants; the
// secret itself comes from the environment.
const (
	EncryptionSalt       = "deskbridge-cred-salt-v1"
	EncryptionKeySize    = 32
	EncryptionNonceSize  = 12
	EncryptionIterations = 100000
	MinEncryptionSecret  = 32
)
