package btcaddr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValid(t *testing.T) {
	cases := []struct {
		name string
		addr string
		want bool
	}{
		{"p2pkh", "1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN2", true},
		{"p2sh", "3J98t1WpEZ73CNmQviecrnyiWrnqRhWNLy", true},
		{"bech32", "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq", true},
		{"bech32 upper", "BC1QAR0SRRR7XFKVY5L643LYDNW9RE59GTZZWF5MDQ", true},
		{"empty", "", false},
		{"too short", "1BvBMSEY", false},
		{"bad prefix", "2J98t1WpEZ73CNmQviecrnyiWrnqRhWNLy", false},
		{"base58 illegal char 0", "3J98t1WpEZ73CNmQviecrnyiWrnqRhWN0y", false},
		{"base58 illegal char l", "1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVNl", false},
		{"bech32 mixed case", "bc1Qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq", false},
		{"bech32 illegal char b", "bc1bar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq", false},
		{"whitespace only", "   ", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Valid(tc.addr))
		})
	}
}
