package execution

import (
	"fmt"

	solanago "github.com/gagliardetto/solana-go"
)

// Signer signs transaction messages. solana-go's PrivateKey satisfies it.
type Signer interface {
	PublicKey() solanago.PublicKey
	Sign(payload []byte) (solanago.Signature, error)
}

// signTransaction writes signer's signature into its slot among the
// message's required signers. Other slots are left as they are.
func signTransaction(tx *solanago.Transaction, signer Signer) error {
	required := int(tx.Message.Header.NumRequiredSignatures)
	pub := signer.PublicKey()

	slot := -1
	for i := 0; i < required && i < len(tx.Message.AccountKeys); i++ {
		if tx.Message.AccountKeys[i] == pub {
			slot = i
			break
		}
	}
	if slot < 0 {
		return fmt.Errorf("%w: %s", ErrSignerNotRequired, pub)
	}

	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	sig, err := signer.Sign(msg)
	if err != nil {
		return fmt.Errorf("sign message: %w", err)
	}

	for len(tx.Signatures) < required {
		tx.Signatures = append(tx.Signatures, solanago.Signature{})
	}
	tx.Signatures[slot] = sig
	return nil
}
