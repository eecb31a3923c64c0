package ledger

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/params"
)

const etherDecimals = 18

var etherAmountRegex = regexp.MustCompile(`^[0-9]+(\.[0-9]{1,18})?$`)

// ParseEther converts a decimal ether amount such as "0.001" to wei.
func ParseEther(amount string) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if !etherAmountRegex.MatchString(amount) {
		return nil, fmt.Errorf("invalid ether amount %q", amount)
	}

	whole, frac, _ := strings.Cut(amount, ".")
	frac += strings.Repeat("0", etherDecimals-len(frac))

	wei, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("invalid ether amount %q", amount)
	}
	return wei, nil
}

// FormatEther renders wei as a decimal ether string without trailing zeros.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}

	s := new(big.Rat).SetFrac(wei, big.NewInt(params.Ether)).FloatString(etherDecimals)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	return s
}
