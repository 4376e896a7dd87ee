package solana

import "strings"

// Environment is the public RPC endpoint of a Solana cluster
type Environment string

const (
	EnvironmentDev  Environment = "https://api.devnet.solana.com"
	EnvironmentTest Environment = "https://api.testnet.solana.com"
	EnvironmentProd Environment = "https://api.mainnet-beta.solana.com"
)

// ResolveEndpoint maps a cluster moniker to its public RPC endpoint. Any other
// value is taken to be an endpoint URL and returned unchanged.
func ResolveEndpoint(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "devnet":
		return string(EnvironmentDev)
	case "testnet":
		return string(EnvironmentTest)
	case "mainnet", "mainnet-beta":
		return string(EnvironmentProd)
	}
	return value
}
