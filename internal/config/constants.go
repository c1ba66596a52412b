package config

// Default paths for databases
const (
	// DefaultDatabasePath is the default path for the main application database
	DefaultDatabasePath = "./librarysync.db"

	// DefaultKeyringService is the OS keyring service that source secrets are stored under
	DefaultKeyringService = "librarysync"
)

// Credential manager backends
const (
	CredentialManagerKeyring  = "keyring"
	CredentialManagerDatabase = "database"
	CredentialManagerNone     = "none"
)
