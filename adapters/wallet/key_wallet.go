package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

// signatureLength is r || s || v
const signatureLength = 65

// KeyWallet signs messages with a local secp256k1 private key using
// personal_sign (EIP-191) semantics, the same scheme browser wallets use.
type KeyWallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

var _ ports.Wallet = (*KeyWallet)(nil)

// NewKeyWallet creates a wallet for an existing private key
func NewKeyWallet(key *ecdsa.PrivateKey) *KeyWallet {
	return &KeyWallet{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

// NewKeyWalletFromHex parses a hex encoded private key, with or without 0x prefix
func NewKeyWalletFromHex(hexKey string) (*KeyWallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return NewKeyWallet(key), nil
}

// GenerateKeyWallet creates a wallet with a fresh random key
func GenerateKeyWallet() (*KeyWallet, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return NewKeyWallet(key), nil
}

// Address returns the checksummed wallet address
func (w *KeyWallet) Address() string {
	return w.address.Hex()
}

// SignMessage signs the EIP-191 hash of message
func (w *KeyWallet) SignMessage(ctx context.Context, message string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), w.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign message: %w", err)
	}
	// Wallets return v as 27/28
	sig[crypto.RecoveryIDOffset] += 27

	return hexutil.Encode(sig), nil
}

// RecoverAddress returns the address that produced an EIP-191 signature of message
func RecoverAddress(message, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to decode signature: %w", core.ErrInvalidSignature)
	}
	if len(sig) != signatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes: %w", signatureLength, core.ErrInvalidSignature)
	}

	// Accept both 0/1 and 27/28 recovery ids
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", core.ErrInvalidSignature)
	}

	return crypto.PubkeyToAddress(*pub), nil
}

// VerifySignature checks that signature was produced by address over message
func VerifySignature(message, signature, address string) error {
	if !common.IsHexAddress(address) {
		return fmt.Errorf("malformed address %q: %w", address, core.ErrInvalidSignature)
	}

	recovered, err := RecoverAddress(message, signature)
	if err != nil {
		return err
	}

	if recovered != common.HexToAddress(address) {
		return core.ErrInvalidSignature
	}
	return nil
}
