package pool

// Static fallback endpoints per network, appended after the configured
// primary. Public endpoints with no API key; good enough to keep the
// pipeline moving while a paid endpoint is down.
var defaultFallbacks = map[string][]string{
	"ethereum": {
		"https://eth.llamarpc.com",
		"https://rpc.ankr.com/eth",
		"https://cloudflare-eth.com",
	},
	"polygon": {
		"https://polygon-rpc.com",
		"https://rpc.ankr.com/polygon",
	},
	"bsc": {
		"https://bsc-dataseed.binance.org",
		"https://bsc-dataseed1.defibit.io",
	},
}
