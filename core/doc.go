// Package core contains the ledger sync domain model, the store and gateway
// contracts, and the Service that drives OAuth connection, pull sync and
// document push. Adapters depend on core; core never imports a provider or
// transport package.
package core
