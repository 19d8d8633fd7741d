package join

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"github.com/cuisonghui/scylla/pkg/types"
)

// tokenBits is the exclusive upper bound of generated tokens: they are
// drawn uniformly from [0, 2^128).
var tokenBits = new(big.Int).Lsh(big.NewInt(1), 128)

// randomTokens generates n unique random tokens with the crypto/rand
// big.Int pattern commonly used for certificate serial numbers.
func randomTokens(n int) ([]types.Token, error) {
	seen := make(map[string]struct{}, n)
	out := make([]types.Token, 0, n)
	for len(out) < n {
		v, err := rand.Int(rand.Reader, tokenBits)
		if err != nil {
			return nil, fmt.Errorf("join: generate random token: %w", err)
		}
		t := types.NewToken(v)
		if _, dup := seen[t.String()]; dup {
			continue
		}
		seen[t.String()] = struct{}{}
		out = append(out, t)
	}
	return out, nil
}

// newHostID generates a fresh 128-bit host id from a random UUID, the same
// generator the rest of this codebase's entity ids use.
func newHostID() types.HostID {
	id := uuid.New()
	hi := binary.BigEndian.Uint64(id[0:8])
	lo := binary.BigEndian.Uint64(id[8:16])
	return types.NewHostID(hi, lo)
}

func encodeTokens(tokens []types.Token) string {
	out := make([]byte, 0, len(tokens)*20)
	for i, t := range tokens {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, t.String()...)
	}
	return string(out)
}
