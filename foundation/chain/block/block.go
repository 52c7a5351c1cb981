// Package block defines the block structure the chain produces and the
// header checks that do not require chain state.
package block

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"

	"github.com/crescentlabs/crescent/foundation/chain/merkle"
	"github.com/crescentlabs/crescent/foundation/chain/operation"
	"github.com/crescentlabs/crescent/foundation/chain/signature"
)

// Header carries the consensus fields of a block. The optional hardfork
// vote fields are the header extensions witnesses use to signal
// readiness for a protocol upgrade.
type Header struct {
	Previous            string `json:"previous"`
	Number              uint64 `json:"number"`
	Timestamp           uint64 `json:"timestamp"`
	Witness             string `json:"witness"`
	TransactionRoot     string `json:"transaction_root"`
	HardforkVersionVote uint32 `json:"hardfork_version_vote,omitempty"`
	HardforkTimeVote    uint64 `json:"hardfork_time_vote,omitempty"`
}

// Block is a header plus the transactions it commits to and the
// producing witness's signature over the header.
type Block struct {
	Header
	WitnessSignature string                        `json:"witness_signature"`
	Transactions     []operation.SignedTransaction `json:"transactions"`
}

// =============================================================================

// New constructs an unsigned block over the given transactions with the
// merkle root already computed.
func New(previous string, number uint64, timestamp uint64, witness string, txs []operation.SignedTransaction) (Block, error) {
	root, err := MerkleRoot(txs)
	if err != nil {
		return Block{}, err
	}

	b := Block{
		Header: Header{
			Previous:        previous,
			Number:          number,
			Timestamp:       timestamp,
			Witness:         witness,
			TransactionRoot: root,
		},
		Transactions: txs,
	}

	return b, nil
}

// MerkleRoot computes the transaction merkle root. An empty block
// commits to the zero hash.
func MerkleRoot(txs []operation.SignedTransaction) (string, error) {
	if len(txs) == 0 {
		return signature.ZeroHash, nil
	}

	tree, err := merkle.NewTree(txs)
	if err != nil {
		return "", err
	}

	return tree.RootHex(), nil
}

// Sign attaches the producing witness's signature over the header.
func (b Block) Sign(privateKey *ecdsa.PrivateKey) (Block, error) {
	sig, err := signature.Sign(b.Header, privateKey)
	if err != nil {
		return Block{}, err
	}

	b.WitnessSignature = sig
	return b, nil
}

// SignerAddress recovers the key address that signed the header.
func (b Block) SignerAddress() (string, error) {
	return signature.Recover(b.Header, b.WitnessSignature)
}

// ID returns the unique hash of the block header.
func (b Block) ID() string {
	if b.Number == 0 {
		return signature.ZeroHash
	}
	return signature.Hash(b.Header)
}

// =============================================================================

// NumFromID decodes the ref-block short number a transaction uses for
// TaPoS from a block's own chain position.
func NumFromID(number uint64) uint16 {
	return uint16(number & 0xffff)
}

// IDPrefix extracts the 32-bit prefix of a block id that TaPoS checks
// against a transaction's ref_block_prefix.
func IDPrefix(id string) uint32 {
	if len(id) < 2+16 {
		return 0
	}

	raw, err := hex.DecodeString(id[2:18])
	if err != nil || len(raw) < 8 {
		return 0
	}

	// Skip the leading 4 bytes so the prefix is not dominated by any
	// structural alignment of the hash encoding.
	return uint32(raw[4]) | uint32(raw[5])<<8 | uint32(raw[6])<<16 | uint32(raw[7])<<24
}

// ValidateStructure performs the stateless checks of a block.
func (b Block) ValidateStructure() error {
	if b.Number == 0 {
		return fmt.Errorf("block number zero is the genesis placeholder")
	}
	if b.Witness == "" {
		return fmt.Errorf("block names no witness")
	}
	if b.WitnessSignature == "" {
		return fmt.Errorf("block carries no witness signature")
	}
	if err := signature.VerifyFormat(b.WitnessSignature); err != nil {
		return fmt.Errorf("malformed witness signature: %w", err)
	}
	return nil
}

// String implements the fmt.Stringer interface for logging.
func (b Block) String() string {
	return fmt.Sprintf("blk %d [%s] by %s txs[%d]", b.Number, b.ID()[:10], b.Witness, len(b.Transactions))
}
