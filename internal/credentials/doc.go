// Package credentials provides the stores that keep storage source secrets
// outside the source records, so sources can be unlocked without prompting.
//
// Every store satisfies storagesource.CredentialManager:
//
//   - KeyringManager: the OS keyring (Keychain, Secret Service, Windows Credential Manager)
//   - DatabaseManager: the application database, encrypted under a machine key
//   - NoopManager: stores nothing
//
// A missing secret is reported as found=false, never as an error. Deleting a
// missing secret is not an error either.
package credentials
