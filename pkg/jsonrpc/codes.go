package jsonrpc

// JSON-RPC 2.0 error codes used by the bridge, plus the one provider
// specific code the dispatcher inspects.
const (
	// CodeParseError is returned for payloads that match no message shape.
	CodeParseError = -32700

	// CodeMethodNotFound doubles as the "no provider selected" code: a
	// forwarded method cannot be resolved without an active provider.
	CodeMethodNotFound = -32601

	// CodeInvalidParams is returned when a bridge-internal method is
	// called with missing or malformed parameters.
	CodeInvalidParams = -32602

	// CodeInternalError is the fallback for provider failures that carry
	// no numeric code of their own.
	CodeInternalError = -32603

	// CodeUserRejected is the EIP-1193 user-rejected-request code. The
	// dispatcher retries eth_requestAccounts once on this code to absorb
	// a cold-start race in some injected provider proxies.
	CodeUserRejected = 4001
)
