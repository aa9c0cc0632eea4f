package hyperliquid

import (
	"crypto/ecdsa"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/vmihailenco/msgpack/v5"
)

// signer produces the L1 action signature the exchange endpoint
// expects: keccak over the msgpack-encoded action plus nonce, wrapped
// in an EIP-712 "Agent" struct and signed with the API wallet key.
type signer struct {
	key     *ecdsa.PrivateKey
	testnet bool
}

func newSigner(privateKeyHex string, testnet bool) (*signer, error) {
	keyHex := strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	if keyHex == "" {
		return nil, fmt.Errorf("private key is required for trading")
	}
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	return &signer{key: key, testnet: testnet}, nil
}

// actionHash is keccak256(msgpack(action) || nonce_be64 || 0x00). The
// trailing zero byte means "no vault address".
func actionHash(action any, nonce int64) ([32]byte, error) {
	var out [32]byte
	packed, err := msgpack.Marshal(action)
	if err != nil {
		return out, fmt.Errorf("encoding action: %w", err)
	}
	buf := make([]byte, 0, len(packed)+9)
	buf = append(buf, packed...)
	var nonceBytes [8]byte
	binary.BigEndian.PutUint64(nonceBytes[:], uint64(nonce))
	buf = append(buf, nonceBytes[:]...)
	buf = append(buf, 0x00)
	copy(out[:], crypto.Keccak256(buf))
	return out, nil
}

func (s *signer) sign(action any, nonce int64) (*signature, error) {
	hash, err := actionHash(action, nonce)
	if err != nil {
		return nil, err
	}

	source := "a"
	if s.testnet {
		source = "b"
	}
	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Agent": {
				{Name: "source", Type: "string"},
				{Name: "connectionId", Type: "bytes32"},
			},
		},
		PrimaryType: "Agent",
		Domain: apitypes.TypedDataDomain{
			Name:              "Exchange",
			Version:           "1",
			ChainId:           math.NewHexOrDecimal256(1337),
			VerifyingContract: "0x0000000000000000000000000000000000000000",
		},
		Message: apitypes.TypedDataMessage{
			"source":       source,
			"connectionId": hash[:],
		},
	}

	sighash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return nil, fmt.Errorf("hashing typed data: %w", err)
	}
	sig, err := crypto.Sign(sighash, s.key)
	if err != nil {
		return nil, fmt.Errorf("signing action: %w", err)
	}
	return &signature{
		R: hexutil.Encode(sig[:32]),
		S: hexutil.Encode(sig[32:64]),
		V: sig[64] + 27,
	}, nil
}
