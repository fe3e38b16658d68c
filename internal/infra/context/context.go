// Package context carries request-scoped values shared by logging and transport.
package context

type contextKey string
