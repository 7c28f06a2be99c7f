// Package credential provides types.CredentialProvider implementations.
//
// Static holds fixed values and is meant for tests and demos. Keyring reads
// the auth token (and optionally the subject ID) from the OS keyring through
// github.com/99designs/keyring. When no subject is stored, it is taken from
// the "sub" claim of a JWT auth token.
package credential
