package wallet

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// addressRegex is a regular expression for validating the basic format of Ethereum-style addresses.
	// It checks for a "0x" prefix followed by exactly 40 hexadecimal characters.
	addressRegex = regexp.MustCompile("^0x[0-9a-fA-F]{40}$")
)

// ValidateAddress validates a blockchain address for a specific network and
// returns it parsed. Mixed-case input must carry a valid EIP-55 checksum.
//
// Example:
//
//	addr, err := ValidateAddress(ETH, "0x742d35Cc6634C0532925a3b844Bc454e4438f44e")
//	if err != nil {
//	    log.Fatal(err)
//	}
func ValidateAddress(network NetworkType, address string) (common.Address, error) {
	// Basic format validation
	if !addressRegex.MatchString(address) {
		return common.Address{}, NewWalletError(
			ErrCodeInvalidAddress,
			fmt.Sprintf("invalid address format %q", address),
			nil,
			network,
		)
	}

	// Convert to checksum address
	parsed := common.HexToAddress(address)
	checksumAddr := parsed.Hex()

	// If the address was provided with checksum, verify it matches
	lower := "0x" + strings.ToLower(address[2:])
	upper := "0x" + strings.ToUpper(address[2:])
	if address != lower && address != upper && address != checksumAddr {
		return common.Address{}, NewWalletError(
			ErrCodeInvalidAddress,
			"invalid address checksum",
			nil,
			network,
		)
	}

	// Network-specific validation
	switch network {
	case ETH, BASE, BSC, DEV:
		// All supported networks share the Ethereum address format
		return parsed, nil
	default:
		return common.Address{}, NewWalletError(
			ErrCodeInvalidNetwork,
			fmt.Sprintf("unsupported network: %s", network),
			nil,
			network,
		)
	}
}
