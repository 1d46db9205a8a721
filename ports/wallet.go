package ports

//go:generate mockgen -source=wallet.go -destination=../mocks/mock_wallet.go -package=mocks

import "context"

// Wallet is the external signing capability of a connected wallet
type Wallet interface {
	// Address returns the hex encoded wallet address
	Address() string

	// SignMessage signs a human readable message and returns the hex encoded signature
	SignMessage(ctx context.Context, message string) (string, error)
}
