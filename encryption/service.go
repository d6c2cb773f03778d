package encryption

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"

	"election-backend/models"
)

var ErrMalformedReceipt = errors.New("malformed receipt")

// CryptoService derives tamper-evident receipts for recorded votes.
type CryptoService struct{}

func NewCryptoService() *CryptoService {
	return &CryptoService{}
}

// Keccak256 computes Keccak-256 hash
func (cs *CryptoService) Keccak256(data ...[]byte) []byte {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	return d.Sum(nil)
}

// VoteReceipt returns the 0x-prefixed Keccak-256 digest of the vote's
// recorded fields. The Receipt field itself is not part of the digest.
func (cs *CryptoService) VoteReceipt(vote *models.Vote) string {
	return hexutil.Encode(crypto.Keccak256(voteDigestInput(vote)))
}

// VerifyReceipt reports whether the vote still matches its stored receipt.
func (cs *CryptoService) VerifyReceipt(vote *models.Vote) (bool, error) {
	stored, err := hexutil.Decode(vote.Receipt)
	if err != nil {
		return false, ErrMalformedReceipt
	}
	expected := cs.Keccak256(voteDigestInput(vote))
	return bytes.Equal(stored, expected), nil
}

func voteDigestInput(vote *models.Vote) []byte {
	buf := make([]byte, 0, 32+len(vote.Candidate))
	buf = binary.BigEndian.AppendUint64(buf, vote.ID)
	buf = binary.BigEndian.AppendUint64(buf, vote.VoterID)
	buf = binary.BigEndian.AppendUint64(buf, vote.ElectionID)
	buf = binary.BigEndian.AppendUint64(buf, uint64(vote.Timestamp))
	return append(buf, vote.Candidate...)
}
