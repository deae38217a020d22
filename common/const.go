package common

// JSON-RPC method names served by the daemon.
const (
	MethodVersion = "system.getVersion"
	MethodAdd     = "queue.add"
	MethodList    = "queue.list"
	MethodGet     = "queue.get"
	MethodPause   = "queue.pause"
	MethodResume  = "queue.resume"
	MethodCancel  = "queue.cancel"
	MethodRetry   = "queue.retry"
	MethodRemove  = "queue.remove"
	MethodClear   = "queue.clear"
	MethodInfo    = "queue.info"
)

// Push notifications sent over the WebSocket endpoint. Lifecycle events use
// EventPrefix followed by the event type, e.g. "event.download_completed".
const (
	EventPrefix         = "event."
	NotifyProgress      = EventPrefix + "progress"
	RPCPath             = "/jsonrpc"
	RPCWebSocketPath    = "/jsonrpc/ws"
	MetricsPath         = "/metrics"
	HealthPath          = "/healthz"
	DefaultDaemonListen = "127.0.0.1:3849"
)

// Metadata keys filled by the add command shortcuts.
const (
	MetaChatID    = "chat_id"
	MetaMessageID = "message_id"
)

// Application JSON-RPC error codes.
const (
	CodeJobNotFound  = -32001
	CodeInvalidState = -32002
)
