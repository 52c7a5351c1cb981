package operation

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/crescentlabs/crescent/foundation/chain/signature"
)

// Transaction is the unsigned envelope of operations. The reference block
// fields prove chain awareness (TaPoS) and the expiration bounds replay.
type Transaction struct {
	RefBlockNum    uint16 `json:"ref_block_num"`
	RefBlockPrefix uint32 `json:"ref_block_prefix"`
	Expiration     uint64 `json:"expiration"`
	Operations     []Op   `json:"operations"`
}

// Validate performs the structural checks of the envelope and every
// embedded operation.
func (tx Transaction) Validate() error {
	if len(tx.Operations) == 0 {
		return errors.New("transaction carries no operations")
	}

	for i, op := range tx.Operations {
		if op.Operation == nil {
			return fmt.Errorf("operation %d is empty", i)
		}
		if _, isVirtual := op.Operation.(VirtualOp); isVirtual {
			return fmt.Errorf("operation %d is virtual and cannot be submitted", i)
		}
		if err := op.Operation.Validate(); err != nil {
			return fmt.Errorf("operation %d (%s): %w", i, op.Operation.Kind(), err)
		}
	}

	return nil
}

// RequiredAuthorities collects the authority demands of every operation.
func (tx Transaction) RequiredAuthorities() Required {
	var req Required
	for _, op := range tx.Operations {
		req.Merge(op.Operation.Authorities())
	}
	return req
}

// ID returns the unique hash identifying this transaction for the
// duplicate check window.
func (tx Transaction) ID() string {
	return signature.Hash(tx)
}

// Sign produces a signed transaction carrying the signature of the
// provided key in addition to any already present.
func (tx Transaction) Sign(privateKey *ecdsa.PrivateKey) (SignedTransaction, error) {
	sig, err := signature.Sign(tx, privateKey)
	if err != nil {
		return SignedTransaction{}, err
	}

	return SignedTransaction{Transaction: tx, Signatures: []string{sig}}, nil
}

// =============================================================================

// SignedTransaction is a transaction plus the signatures that authorize
// it. This is how clients submit work for inclusion into the chain.
type SignedTransaction struct {
	Transaction
	Signatures []string `json:"signatures"`
}

// AddSignature appends another key's signature for multisig authorities.
func (tx SignedTransaction) AddSignature(privateKey *ecdsa.PrivateKey) (SignedTransaction, error) {
	sig, err := signature.Sign(tx.Transaction, privateKey)
	if err != nil {
		return SignedTransaction{}, err
	}

	tx.Signatures = append(tx.Signatures, sig)
	return tx, nil
}

// Signers recovers the set of key addresses that signed the transaction.
func (tx SignedTransaction) Signers() ([]string, error) {
	if len(tx.Signatures) == 0 {
		return nil, errors.New("transaction carries no signatures")
	}
	return signature.RecoverAll(tx.Transaction, tx.Signatures)
}

// Size returns the encoded size used for block-size and bandwidth
// accounting.
func (tx SignedTransaction) Size() int {
	size := 32 + len(tx.Signatures)*65
	for _, op := range tx.Operations {
		if data, err := op.MarshalJSON(); err == nil {
			size += len(data)
		}
	}
	return size
}

// Hash implements the merkle Hashable interface for providing a hash of
// a transaction as recorded in a block.
func (tx SignedTransaction) Hash() ([]byte, error) {
	str := signature.Hash(tx)
	return hex.DecodeString(str[2:])
}

// Equals implements the merkle Hashable interface. Two transactions with
// the same id and signature set are the same.
func (tx SignedTransaction) Equals(other SignedTransaction) bool {
	if tx.ID() != other.ID() || len(tx.Signatures) != len(other.Signatures) {
		return false
	}
	for i := range tx.Signatures {
		if tx.Signatures[i] != other.Signatures[i] {
			return false
		}
	}
	return true
}

// String implements the fmt.Stringer interface for logging.
func (tx SignedTransaction) String() string {
	return fmt.Sprintf("%s:%d ops", tx.ID()[:10], len(tx.Operations))
}
