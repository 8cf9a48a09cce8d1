package solana

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// KeypairWallet is a Wallet backed by a local keypair file. Used by the
// reconciler for the permissionless lifecycle instructions and by the CLI
// for admin operations.
type KeypairWallet struct {
	key solana.PrivateKey
}

// LoadKeypairWallet reads a solana-keygen JSON keypair file.
func LoadKeypairWallet(path string) (*KeypairWallet, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("load keypair %s: %w", path, err)
	}
	return &KeypairWallet{key: key}, nil
}

// NewKeypairWallet wraps an in-memory private key. Test helper.
func NewKeypairWallet(key solana.PrivateKey) *KeypairWallet {
	return &KeypairWallet{key: key}
}

func (w *KeypairWallet) PublicKey() solana.PublicKey {
	return w.key.PublicKey()
}

func (w *KeypairWallet) SignTransaction(ctx context.Context, tx *solana.Transaction) error {
	_, err := tx.Sign(func(pk solana.PublicKey) *solana.PrivateKey {
		if pk.Equals(w.key.PublicKey()) {
			return &w.key
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sign transaction: %w", err)
	}
	return nil
}
