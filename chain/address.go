package chain

import (
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/40acres/htlc-bridge/database/models"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
)

type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
	Regtest Network = "regtest"
)

var ErrInvalidAddress = errors.New("invalid address")

var nearAccount = regexp.MustCompile(`^(([a-z\d]+[-_])*[a-z\d]+\.)*([a-z\d]+[-_])*[a-z\d]+$`)

func (n Network) BitcoinParams() *chaincfg.Params {
	switch n {
	case Testnet:
		return &chaincfg.TestNet3Params
	case Regtest:
		return &chaincfg.RegressionNetParams
	default:
		return &chaincfg.MainNetParams
	}
}

// ValidateAddress checks that address is well formed for the chain.
func ValidateAddress(c models.Chain, network Network, address string) error {
	var err error
	switch c {
	case models.Ethereum:
		err = validateEVM(address)
	case models.Near:
		err = validateNear(address)
	case models.Bitcoin:
		err = validateBitcoin(network, address)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedChain, c)
	}
	if err != nil {
		return fmt.Errorf("%w: %s address %q: %w", ErrInvalidAddress, c, address, err)
	}

	return nil
}

func validateEVM(address string) error {
	if !common.IsHexAddress(address) || !strings.HasPrefix(address, "0x") {
		return errors.New("not a 0x prefixed 20 byte hex address")
	}
	hexPart := address[2:]
	if strings.ToLower(hexPart) != hexPart && strings.ToUpper(hexPart) != hexPart {
		if common.HexToAddress(address).Hex() != address {
			return errors.New("bad checksum")
		}
	}

	return nil
}

func validateNear(address string) error {
	if len(address) == 64 && strings.ToLower(address) == address {
		if _, err := hex.DecodeString(address); err == nil {
			return nil
		}
	}
	if len(address) < 2 || len(address) > 64 {
		return errors.New("account id must be between 2 and 64 characters")
	}
	if !nearAccount.MatchString(address) {
		return errors.New("not a valid account id")
	}

	return nil
}

func validateBitcoin(network Network, address string) error {
	params := network.BitcoinParams()
	decoded, err := btcutil.DecodeAddress(address, params)
	if err != nil {
		return err
	}
	if !decoded.IsForNet(params) {
		return fmt.Errorf("address is not for %s", network)
	}

	return nil
}
