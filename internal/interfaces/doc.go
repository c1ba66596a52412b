// Package interfaces documents the core abstractions used throughout the application.
//
// # Interface Categories
//
// ## Storage
//
//   - storage.Client: one remote or local file store (internal/storage/client.go)
//   - replication.Handler: book data replication over one storage kind (internal/replication/handler.go)
//   - filestore.Connector: opens a storage.Client for a named source (internal/replication/filestore/handler.go)
//
// ## Storage Sources
//
//   - storagesource.CredentialManager: secrets kept outside the database (internal/storagesource/unlock.go)
//   - storagesource.Prompter: asks the user to unlock a source (internal/storagesource/unlock.go)
//   - storagesource.PointerStore: persists active source pointers (internal/storagesource/registry.go)
//
// ## Background Work
//
//   - scheduler.ProgressReporter: sync progress reporting (internal/scheduler/library_sync.go)
//   - scheduler.EntryStore: cached backend book lists (internal/scheduler/library_sync.go)
//
// # Adding a New Storage Backend
//
//  1. Implement storage.Client in internal/storage/providers/<name>/
//
//     type Client struct { ... }
//
//     func (c *Client) List(ctx context.Context, path string) ([]storage.FileInfo, error)
//     func (c *Client) Download(ctx context.Context, path string) (io.ReadCloser, error)
//     ...
//
//  2. Add a Connector in internal/replication/backends/connectors.go that
//     unlocks the source's credentials and builds the client.
//
//  3. Dispatch the new kind in backends.New.
//
// # Compile-Time Interface Checks
//
// All implementations should include compile-time checks to ensure they satisfy
// their interfaces. This catches missing methods at compile time rather than runtime:
//
//	var _ SomeInterface = (*MyImplementation)(nil)
//
// See checks.go for the full list.
package interfaces
