package model

import (
	"fmt"
	"sort"
	"strings"
)

// Chain identifies a supported blockchain network.
type Chain string

const (
	ChainStellar  Chain = "stellar"
	ChainEthereum Chain = "ethereum"
	ChainPolygon  Chain = "polygon"
)

// Currency identifies the native currency of a chain.
type Currency string

const (
	CurrencyXLM   Currency = "XLM"
	CurrencyETH   Currency = "ETH"
	CurrencyMATIC Currency = "MATIC"
)

// CurrencyInfo describes a configured currency.
type CurrencyInfo struct {
	Currency Currency `json:"currency"`
	Chain    Chain    `json:"chain"`
	Decimals uint8    `json:"decimals"`
	// FeedID is the price-feed identifier (CoinGecko coin id).
	FeedID string `json:"feedId"`
	// DefaultUSD is served when the currency has never been priced successfully.
	DefaultUSD float64 `json:"defaultUsd"`
}

var currencies = map[Currency]CurrencyInfo{
	CurrencyXLM:   {Currency: CurrencyXLM, Chain: ChainStellar, Decimals: 7, FeedID: "stellar", DefaultUSD: 0.12},
	CurrencyETH:   {Currency: CurrencyETH, Chain: ChainEthereum, Decimals: 18, FeedID: "ethereum", DefaultUSD: 2000},
	CurrencyMATIC: {Currency: CurrencyMATIC, Chain: ChainPolygon, Decimals: 18, FeedID: "matic-network", DefaultUSD: 0.80},
}

var chains = map[Chain]Currency{
	ChainStellar:  CurrencyXLM,
	ChainEthereum: CurrencyETH,
	ChainPolygon:  CurrencyMATIC,
}

// LookupCurrency returns the registry entry for a currency.
func LookupCurrency(c Currency) (CurrencyInfo, bool) {
	info, ok := currencies[c]
	return info, ok
}

// Currencies returns all configured currencies in a stable order.
func Currencies() []CurrencyInfo {
	out := make([]CurrencyInfo, 0, len(currencies))
	for _, info := range currencies {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out
}

// NativeCurrency returns the native currency of a chain.
func (c Chain) NativeCurrency() (Currency, bool) {
	cur, ok := chains[c]
	return cur, ok
}

// Valid reports whether the chain is supported.
func (c Chain) Valid() bool {
	_, ok := chains[c]
	return ok
}

// IsEVM reports whether the chain uses EVM addresses and hashes.
func (c Chain) IsEVM() bool {
	return c == ChainEthereum || c == ChainPolygon
}

// Valid reports whether the currency is configured.
func (c Currency) Valid() bool {
	_, ok := currencies[c]
	return ok
}

// ParseChain normalizes user input into a supported chain.
func ParseChain(input string) (Chain, error) {
	chain := Chain(strings.ToLower(strings.TrimSpace(input)))
	if !chain.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedChain, input)
	}
	return chain, nil
}

// ParseCurrency normalizes user input into a configured currency.
func ParseCurrency(input string) (Currency, error) {
	cur := Currency(strings.ToUpper(strings.TrimSpace(input)))
	if !cur.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedCurrency, input)
	}
	return cur, nil
}
