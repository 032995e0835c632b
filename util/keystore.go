// Copyright 2021-2026, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/chunkposter/blob/master/LICENSE.md

package util

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/offchainlabs/chunkposter/cmd/genericconf"
)

func GetTransactOptsFromKeystore(keystorePath, accountAddress, passphrase string, chainId *big.Int) (*bind.TransactOpts, error) {
	if keystorePath == "" {
		return nil, errors.New("keystore path empty")
	}
	return getTransactOptsFromKeystore(keystore.NewKeyStore(keystorePath, keystore.StandardScryptN, keystore.StandardScryptP), keystorePath, accountAddress, passphrase, chainId)
}

func getTransactOptsFromKeystore(ks *keystore.KeyStore, keystorePath, accountAddress, passphrase string, chainId *big.Int) (*bind.TransactOpts, error) {
	if keystorePath == "" {
		return nil, errors.New("keystore path empty")
	}
	var account accounts.Account
	if accountAddress == "" {
		if len(ks.Accounts()) == 0 {
			return nil, errors.New("keystore empty")
		}
		account = ks.Accounts()[0]
	} else {
		if !common.IsHexAddress(accountAddress) {
			return nil, fmt.Errorf("invalid account address %q", accountAddress)
		}
		var err error
		account, err = ks.Find(accounts.Account{Address: common.HexToAddress(accountAddress)})
		if err != nil {
			return nil, err
		}
	}
	if err := ks.Unlock(account, passphrase); err != nil {
		return nil, err
	}
	return bind.NewKeyStoreTransactorWithChainID(ks, account, chainId)
}

func GetTransactOptsFromPrivateKey(privateKey string, chainId *big.Int) (*bind.TransactOpts, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("error parsing private key: %w", err)
	}
	return bind.NewKeyedTransactorWithChainID(key, chainId)
}

// OpenWallet returns signing options for the configured private key or keystore account.
func OpenWallet(wallet *genericconf.WalletConfig, chainId *big.Int) (*bind.TransactOpts, error) {
	if err := wallet.Validate(); err != nil {
		return nil, err
	}
	if wallet.PrivateKey != "" {
		return GetTransactOptsFromPrivateKey(wallet.PrivateKey, chainId)
	}
	return GetTransactOptsFromKeystore(wallet.Pathname, wallet.Account, *wallet.Pwd(), chainId)
}
