package wallet

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"os"
	"strings"

	"github.com/mr-tron/base58/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/reclaim-server/pkg/reclaim"
	"github.com/code-payments/reclaim-server/pkg/solana"
)

// Keypair is a wallet backed by a local private key, sending transactions
// through an RPC client
type Keypair struct {
	log    *logrus.Entry
	client solana.Client
	key    ed25519.PrivateKey
}

func NewKeypair(client solana.Client, key ed25519.PrivateKey) *Keypair {
	return &Keypair{
		log:    logrus.StandardLogger().WithField("type", "wallet/keypair"),
		client: client,
		key:    key,
	}
}

// Connection implements reclaim.Wallet.Connection
func (k *Keypair) Connection() reclaim.Connection {
	return k.client
}

// PublicKey implements reclaim.Wallet.PublicKey
func (k *Keypair) PublicKey() ed25519.PublicKey {
	return k.key.Public().(ed25519.PublicKey)
}

// IsConnected implements reclaim.Wallet.IsConnected
func (k *Keypair) IsConnected() bool {
	return k.client != nil && len(k.key) == ed25519.PrivateKeySize
}

// SignAndSendTransaction implements reclaim.Wallet.SignAndSendTransaction
func (k *Keypair) SignAndSendTransaction(ctx context.Context, txn *solana.Transaction) (solana.Signature, error) {
	if err := ctx.Err(); err != nil {
		return solana.Signature{}, err
	}
	if !k.IsConnected() {
		return solana.Signature{}, reclaim.ErrSignerUnavailable
	}

	if err := txn.Sign(k.key); err != nil {
		return solana.Signature{}, errors.Wrap(reclaim.ErrSignerRejected, err.Error())
	}

	sig, err := k.client.SubmitTransaction(*txn, solana.CommitmentConfirmed)
	if err != nil {
		k.log.WithError(err).WithField("signature", sig.String()).Debug("failure submitting transaction")
	}
	return sig, err
}

// LoadPrivateKey reads a private key file, either as a JSON byte array as
// written by solana-keygen or as a base58 string
func LoadPrivateKey(path string) (ed25519.PrivateKey, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "error reading key file")
	}
	return ParsePrivateKey(string(contents))
}

// ParsePrivateKey decodes a JSON byte array or base58 encoded private key
func ParsePrivateKey(encoded string) (ed25519.PrivateKey, error) {
	encoded = strings.TrimSpace(encoded)

	var raw []byte
	if strings.HasPrefix(encoded, "[") {
		var values []int
		if err := json.Unmarshal([]byte(encoded), &values); err != nil {
			return nil, errors.Wrap(err, "invalid key array")
		}
		for _, v := range values {
			if v < 0 || v > 255 {
				return nil, errors.Errorf("invalid key byte: %d", v)
			}
			raw = append(raw, byte(v))
		}
	} else {
		decoded, err := base58.Decode(encoded)
		if err != nil {
			return nil, errors.Wrap(err, "invalid base58 key")
		}
		raw = decoded
	}

	if len(raw) != ed25519.PrivateKeySize {
		return nil, errors.Errorf("invalid key length: %d", len(raw))
	}

	key := ed25519.PrivateKey(raw)
	if !ed25519.NewKeyFromSeed(key.Seed()).Equal(key) {
		return nil, errors.New("public key does not match private key")
	}
	return key, nil
}
