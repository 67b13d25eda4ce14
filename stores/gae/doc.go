//go:build !wasm
// +build !wasm

// Package gae provides a Google Cloud Datastore implementation of
// siteauth.Adapter. It is designed for deployment on Google Cloud Platform and
// supports multi-tenancy through Datastore namespaces.
//
// # Datastore Kinds
//
// The package uses the following Datastore kinds:
//   - User: User accounts, keyed by user id
//   - UserEmail: Uniqueness marker for a user's email, keyed by the email
//   - Account: Linked provider identities, keyed by provider id and account id
//   - Session: Database-mode sessions, keyed by the session token digest
//   - VerificationToken: Pending email sign-in links
//
// Uniqueness and single-use consumption are enforced with transactions, so
// no composite indexes are required.
//
// # Namespacing
//
// Pass a namespace when creating the adapter to isolate data between tenants:
//
//	adapter := gae.NewDatastoreAdapter(client, "tenant-123")
//
// # Usage
//
//	client, _ := datastore.NewClient(ctx, projectID)
//	adapter := gae.NewDatastoreAdapter(client, "") // default namespace
package gae
