// Package testutil contains helper builders used across tests to reduce
// boilerplate when constructing provider stream chunks and server-sent event
// bodies. These helpers are not intended for production usage.
package testutil
