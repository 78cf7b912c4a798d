package contracts

import (
	"strings"
	"unicode"
)

// ToSnakeCase converts a contract argument name to snake_case, keeping acronym runs
// together: sellerSTAccountAddress -> seller_st_account_address, SCTokenAddress -> sc_token_address
func ToSnakeCase(name string) string {
	runes := []rune(strings.TrimPrefix(name, "_"))
	var b strings.Builder

	for i, r := range runes {
		if unicode.IsUpper(r) && i > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
