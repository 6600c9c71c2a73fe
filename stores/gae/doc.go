//go:build !wasm
// +build !wasm

// Package gae provides a Google Cloud Datastore implementation of
// secrets.IdentityStore. It supports multi-tenancy through Datastore
// namespaces.
//
// # Datastore Kinds
//
//   - Identity: one entity per identity, keyed by a generated id
//   - IdentityLink: uniqueness claims keyed "username:<name>",
//     "google:<sub>" or "facebook:<sub>", each pointing at an Identity
//
// An identity and its link are written in the same transaction, so a
// username or provider id can only ever be claimed once.
//
// # Usage
//
//	client, _ := datastore.NewClient(ctx, projectID)
//	store := gae.NewIdentityStore(client, "") // default namespace
package gae
