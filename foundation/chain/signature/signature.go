// Package signature provides helper functions for handling the chain's
// hashing and signature needs.
package signature

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ZeroHash represents a hash code of zeros.
const ZeroHash string = "0x0000000000000000000000000000000000000000000000000000000000000000"

// crescentID is an arbitrary number added to the recovery id when signing
// messages. It makes signatures produced here invalid on any other chain.
const crescentID = 31

// =============================================================================

// Hash returns a unique string for the value.
func Hash(value any) string {
	data, err := json.Marshal(value)
	if err != nil {
		return ZeroHash
	}

	hash := sha256.Sum256(data)
	return hexutil.Encode(hash[:])
}

// Sign uses the specified private key to sign the value and returns the
// signature in hex-encoded [R|S|V] form.
func Sign(value any, privateKey *ecdsa.PrivateKey) (string, error) {

	// Prepare the data for signing.
	data, err := stamp(value)
	if err != nil {
		return "", err
	}

	// Sign the hash with the private key to produce a signature.
	sig, err := crypto.Sign(data, privateKey)
	if err != nil {
		return "", err
	}

	// Extract the public key from the data and the signature.
	publicKey, err := crypto.SigToPub(data, sig)
	if err != nil {
		return "", err
	}

	// Check the public key extracted from the data and signature.
	rs := sig[:crypto.RecoveryIDOffset]
	if !crypto.VerifySignature(crypto.FromECDSAPub(publicKey), data, rs) {
		return "", errors.New("invalid signature produced")
	}

	sig[crypto.RecoveryIDOffset] += crescentID

	return hexutil.Encode(sig), nil
}

// Recover extracts the address of the key that signed the value.
func Recover(value any, sigHex string) (string, error) {
	sig, err := decode(sigHex)
	if err != nil {
		return "", err
	}

	data, err := stamp(value)
	if err != nil {
		return "", err
	}

	publicKey, err := crypto.SigToPub(data, sig)
	if err != nil {
		return "", err
	}

	return crypto.PubkeyToAddress(*publicKey).String(), nil
}

// RecoverAll extracts the set of addresses that produced the specified
// signatures over the value. Duplicate signers are rejected since they
// could otherwise inflate a weighted threshold check.
func RecoverAll(value any, sigsHex []string) ([]string, error) {
	addrs := make([]string, 0, len(sigsHex))
	seen := make(map[string]bool)

	for _, sigHex := range sigsHex {
		addr, err := Recover(value, sigHex)
		if err != nil {
			return nil, err
		}

		if seen[addr] {
			return nil, errors.New("duplicate signature by " + addr)
		}
		seen[addr] = true

		addrs = append(addrs, addr)
	}

	return addrs, nil
}

// VerifyFormat checks a hex signature conforms to our standards without
// recovering the signer.
func VerifyFormat(sigHex string) error {
	sig, err := decode(sigHex)
	if err != nil {
		return err
	}

	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	if !crypto.ValidateSignatureValues(sig[64], r, s, false) {
		return errors.New("invalid signature values")
	}

	return nil
}

// PublicKeyAddress converts a public key to its address form used inside
// authorities.
func PublicKeyAddress(pk ecdsa.PublicKey) string {
	return crypto.PubkeyToAddress(pk).String()
}

// =============================================================================

// decode converts the hex representation back to the 65 byte form with
// the chain id stripped from the recovery byte.
func decode(sigHex string) ([]byte, error) {
	if len(sigHex) < 2 {
		return nil, errors.New("signature too short")
	}

	sig, err := hex.DecodeString(sigHex[2:])
	if err != nil {
		return nil, err
	}

	if len(sig) != crypto.SignatureLength {
		return nil, errors.New("wrong signature length")
	}

	v := sig[crypto.RecoveryIDOffset]
	if v != crescentID && v != crescentID+1 {
		return nil, errors.New("invalid recovery id")
	}

	out := make([]byte, len(sig))
	copy(out, sig)
	out[crypto.RecoveryIDOffset] = v - crescentID

	return out, nil
}

// stamp returns a hash of 32 bytes that represents this data with the
// chain's stamp embedded into the final hash.
func stamp(value any) ([]byte, error) {

	// Marshal the data.
	v, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}

	// Hash the data into a 32 byte array. This will provide
	// a data length consistency with all data.
	txHash := crypto.Keccak256(v)

	// This stamp is used so signatures we produce when signing data
	// are always unique to the Crescent chain.
	stamp := []byte("\x19Crescent Signed Message:\n32")

	return crypto.Keccak256(stamp, txHash), nil
}
