package transaction

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFallbackKey(t *testing.T) {
	p := Payload{UserID: "u-1", Amount: 100.5, Kind: "deposit"}

	assert.Equal(t, "0d038b6edf3d6beab51c4e98ecbd25e3ecd94605325fa4591ac010ed983e6b47", FallbackKey(p))
	assert.Equal(t, "b8c0c2c35f2f76e32e2631f31886eaafdd65cf8b80d363c33c20212571d6ccff",
		FallbackKey(Payload{UserID: "u-1", Amount: 100, Kind: "deposit"}))
	assert.Equal(t, "774745ee934e53bb1bb88fead3cf2578fc3b202a84dd39cfdc0417168e94f7dc",
		FallbackKey(Payload{UserID: "u-1", Amount: 1e16, Kind: "deposit"}))
}

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{5, "5.0"},
		{100, "100.0"},
		{100.5, "100.5"},
		{0, "0.0"},
		{0.0001, "0.0001"},
		{0.1 + 0.2, "0.30000000000000004"},
		{1.5e-05, "1.5e-05"},
		{1e16, "1e+16"},
		{123456789012345.6, "123456789012345.6"},
		{2.5e100, "2.5e+100"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, formatAmount(tc.in), "%v", tc.in)
	}
}

func TestFallbackKey_IgnoresEmbeddedKey(t *testing.T) {
	p := Payload{UserID: "u-1", Amount: 100.5, Kind: "deposit"}
	withKey := p
	withKey.IdempotencyKey = "explicit"

	assert.Equal(t, FallbackKey(p), FallbackKey(withKey))
}

func TestFallbackKey_DistinguishesEveryField(t *testing.T) {
	base := Payload{UserID: "u-1", Amount: 10, Kind: "deposit"}
	variants := []Payload{
		{UserID: "u-2", Amount: 10, Kind: "deposit"},
		{UserID: "u-1", Amount: 11, Kind: "deposit"},
		{UserID: "u-1", Amount: 10, Kind: "withdrawal"},
	}

	for _, v := range variants {
		assert.NotEqual(t, FallbackKey(base), FallbackKey(v), "%+v", v)
	}
}
