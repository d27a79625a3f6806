package pool

import (
	"strings"

	"github.com/HumansWindow/lastproject-sub008/internal/core/domain"
)

// JSON-RPC request-level error codes: parse error, invalid request, method
// not found, invalid params. Retrying the identical request cannot help.
var fatalRPCCodes = map[int]bool{
	-32700: true,
	-32600: true,
	-32601: true,
	-32602: true,
}

// Terminal chain-execution failures. A signed operation that reverts or
// carries a bad proof fails the same way on every endpoint.
var terminalPatterns = []string{
	"execution reverted",
	"revert",
	"invalid signature",
	"invalid proof",
	"insufficient funds",
	"insufficient eligibility",
	"not eligible",
	"already minted",
	"nonce too low",
}

var throttlePatterns = []string{
	"rate limit",
	"too many requests",
	"daily request count exceeded",
	"project rate limit",
	"quota",
	"plan limit",
}

// classifyRPCError assigns the retry class for a JSON-RPC error object.
// This is the single place the error text is inspected; everything
// downstream consumes the class tag.
func classifyRPCError(e *rpcError) domain.ErrorClass {
	if fatalRPCCodes[e.Code] {
		return domain.ClassTerminal
	}

	msg := strings.ToLower(e.Message)
	for _, p := range throttlePatterns {
		if strings.Contains(msg, p) {
			return domain.ClassConnectivity
		}
	}
	for _, p := range terminalPatterns {
		if strings.Contains(msg, p) {
			return domain.ClassTerminal
		}
	}

	// Node-side errors (-32000 range) without a recognizable cause are
	// treated as transient.
	return domain.ClassConnectivity
}
