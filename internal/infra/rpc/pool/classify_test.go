package pool

import (
	"testing"

	"github.com/HumansWindow/lastproject-sub008/internal/core/domain"
)

func TestClassifyRPCError(t *testing.T) {
	tests := []struct {
		name string
		code int
		msg  string
		want domain.ErrorClass
	}{
		{"method not found code", -32601, "method not found", domain.ClassTerminal},
		{"invalid params code", -32602, "invalid params", domain.ClassTerminal},
		{"parse error code", -32700, "parse error", domain.ClassTerminal},
		{"execution reverted", 3, "execution reverted: not eligible", domain.ClassTerminal},
		{"insufficient funds", -32000, "insufficient funds for gas * price + value", domain.ClassTerminal},
		{"invalid signature", -32000, "invalid signature", domain.ClassTerminal},
		{"nonce too low", -32000, "nonce too low", domain.ClassTerminal},
		{"already minted", -32000, "execution reverted: already minted this year", domain.ClassTerminal},
		{"rate limit text", -32005, "rate limit exceeded", domain.ClassConnectivity},
		{"daily quota", -32005, "daily request count exceeded, request rate limited", domain.ClassConnectivity},
		{"too many requests", -32005, "too many requests", domain.ClassConnectivity},
		{"unknown error defaults retryable", -32000, "something odd happened", domain.ClassConnectivity},
		// Provider throttle text wins over terminal substring matches.
		{"throttle checked before terminal", -32005, "rate limit: execution reverted", domain.ClassConnectivity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyRPCError(&rpcError{Code: tt.code, Message: tt.msg})
			if got != tt.want {
				t.Errorf("classifyRPCError(%d, %q) = %s, want %s", tt.code, tt.msg, got, tt.want)
			}
		})
	}
}
