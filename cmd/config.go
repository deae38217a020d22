package cmd

const DESCRIPTION = `
queuedl is a download queue for files referenced by opaque
file references. A long running daemon owns the queue and a
pool of workers; this command line client talks to it over
JSON-RPC.
`

const (
	DaemonDescription = `The daemon command starts the download queue: it loads
the configuration, re-queues unfinished downloads from the
previous run and serves the RPC endpoint until interrupted.

Example:
        queuedl daemon
        queuedl --config ./queuedl.yaml daemon

`
	AddDescription = `The add command queues one or more file references. The
daemon picks a name and directory when none are given.

Example:
        queuedl add AgACAgIAAxkBAAI
        queuedl add --name movie.mkv --dir /media BQACAgIAAxk
        queuedl add --chat-id 42 --meta source=inbox AgACAgIAAxkBAAI

`
	ListDescription = `The list command displays the downloads known to the
daemon, optionally filtered by status.

Example:
        queuedl list
        queuedl list --status failed --status cancelled

`
	StatusDescription = `The status command shows every stored field of a single
download along with its current speed.

Example:
        queuedl status AgACAgIAAxkBAAI

`
	InfoDescription = `The info command asks the daemon's backend for the remote
name and size of a file reference without queueing it.

Example:
        queuedl info AgACAgIAAxkBAAI

`
	CancelDescription = `The cancel command stops a pending or running download.
Cancelled downloads can be queued again with retry.

Example:
        queuedl cancel AgACAgIAAxkBAAI

`
	RetryDescription = `The retry command queues a failed or cancelled download
again.

Example:
        queuedl retry AgACAgIAAxkBAAI

`
	RemoveDescription = `The remove command deletes a download from the queue and
its history. A running download is cancelled first.

Example:
        queuedl remove AgACAgIAAxkBAAI

`
	ClearDescription = `The clear command deletes completed and cancelled
downloads from the history.

Example:
        queuedl clear

`
	WatchDescription = `The watch command follows the daemon's live events and
draws a progress bar per running download.

Example:
        queuedl watch
        queuedl watch --plain

`
	LoginDescription = `The login command stores a credential in the encrypted
credential store. Supported names are bot_token,
session_password and rpc_secret. The value is read from
--value or from the first line of standard input.

Example:
        queuedl login bot_token --value 123456:ABC-DEF
        echo "$PASSWORD" | queuedl login session_password

`
	LogoutDescription = `The logout command deletes a stored credential.

Example:
        queuedl logout bot_token

`
	ConfigDescription = `The config command prints the effective configuration
after file, .env and environment overrides, with secrets
masked.

Example:
        queuedl config

`
	StopDescription = `The stop command signals the daemon recorded in the PID
file to shut down, waiting for running downloads to be
returned to the queue before forcing it to exit.

Example:
        queuedl stop
        queuedl stop --timeout 30s

`
)
