// Package quickbooks implements the QuickBooks Online gateway and the Intuit
// OAuth2 client. Both are stateless: every call receives the credential it
// must use.
package quickbooks
