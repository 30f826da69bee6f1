// Package testutil contains helper builders and utilities used across tests
// to reduce boilerplate when constructing events, links, action arguments
// and started servers. It is not intended for production usage.
package testutil
