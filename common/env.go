// Package common holds the wire types and constants shared by the queuedl
// daemon and its command line client.
package common

// Environment variables read by the command line client.
const (
	// DaemonURLEnv overrides the daemon base URL, e.g. http://127.0.0.1:3849.
	DaemonURLEnv = "QUEUEDL_DAEMON_URL"

	// RPCSecretEnv supplies the bearer token instead of the credential store.
	RPCSecretEnv = "QUEUEDL_RPC_SECRET"
)
