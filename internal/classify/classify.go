package classify

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"unicode"
)

// Category represents an article classification.
type Category string

const (
	Bitcoin    Category = "Bitcoin"
	Ethereum   Category = "Ethereum"
	DeFi       Category = "DeFi"
	Regulation Category = "Regulation"
	Markets    Category = "Markets"
	Security   Category = "Security"
	NFTWeb3    Category = "NFT & Web3"
	Altcoins   Category = "Altcoins"
)

// AllCategories returns all valid categories in canonical order.
func AllCategories() []Category {
	return []Category{Bitcoin, Ethereum, DeFi, Regulation, Markets, Security, NFTWeb3, Altcoins}
}

var categoryKeywords = map[Category][]string{
	Bitcoin: {
		"bitcoin", "btc", "satoshi", "halving", "lightning network", "taproot",
		"ordinals", "microstrategy", "saylor", "hashrate", "miner", "mining",
	},
	Ethereum: {
		"ethereum", "eth", "ether", "vitalik", "buterin", "solidity", "rollup",
		"layer 2", "arbitrum", "optimism", "blob", "staking", "validator", "pectra",
	},
	DeFi: {
		"defi", "decentralized finance", "uniswap", "aave", "lending", "liquidity",
		"yield", "dex", "amm", "stablecoin", "tvl", "curve", "maker", "protocol",
	},
	Regulation: {
		"sec", "cftc", "regulation", "regulator", "regulatory", "lawsuit", "court",
		"congress", "senate", "bill", "mica", "compliance", "license", "gensler",
		"tax", "sanction", "ban",
	},
	Markets: {
		"price", "rally", "market", "markets", "etf", "inflows", "outflows",
		"trading", "traders", "bull", "bear", "liquidation", "futures", "options",
		"all-time high", "volatility", "fund",
	},
	Security: {
		"hack", "hacked", "exploit", "breach", "phishing", "scam", "drained",
		"vulnerability", "stolen", "attack", "rug pull", "fraud", "ransomware",
	},
	NFTWeb3: {
		"nft", "nfts", "web3", "metaverse", "opensea", "collectible", "gaming",
		"dao", "airdrop", "token-gated",
	},
	Altcoins: {
		"solana", "sol", "xrp", "ripple", "cardano", "dogecoin", "doge", "memecoin",
		"altcoin", "altcoins", "polkadot", "avalanche", "ton", "tron", "litecoin",
	},
}

// FocusAliases maps short names to full category names.
var FocusAliases = map[string]Category{
	"btc":      Bitcoin,
	"eth":      Ethereum,
	"defi":     DeFi,
	"reg":      Regulation,
	"markets":  Markets,
	"security": Security,
	"nft":      NFTWeb3,
	"alts":     Altcoins,
}

// ResolveAlias maps an alias or a full category name to a Category.
func ResolveAlias(alias string) (Category, error) {
	alias = strings.ToLower(strings.TrimSpace(alias))
	if cat, ok := FocusAliases[alias]; ok {
		return cat, nil
	}
	for _, cat := range AllCategories() {
		if strings.EqualFold(string(cat), alias) {
			return cat, nil
		}
	}
	valid := make([]string, 0, len(FocusAliases))
	for k := range FocusAliases {
		valid = append(valid, k)
	}
	sort.Strings(valid)
	return "", fmt.Errorf("unknown category %q (valid: %s)", alias, strings.Join(valid, ", "))
}

// Classify determines the category for an article based on title and description.
// Title keywords are weighted 2x. Returns Altcoins as default.
func Classify(title, description string) Category {
	tt, dt := NewText(title), NewText(description)

	var bestCat Category
	bestScore := 0
	for _, cat := range AllCategories() {
		// Strict comparison keeps the earlier category on ties.
		if score := categoryScore(cat, tt, dt); score > bestScore {
			bestScore = score
			bestCat = cat
		}
	}

	if bestScore == 0 {
		return Altcoins
	}
	return bestCat
}

// Relevance counts crypto keyword hits across every category, title hits
// counting twice.
func Relevance(title, description string) int {
	tt, dt := NewText(title), NewText(description)
	n := 0
	for _, cat := range AllCategories() {
		n += categoryScore(cat, tt, dt)
	}
	return n
}

func categoryScore(cat Category, title, desc Text) int {
	score := 0
	for _, kw := range categoryKeywords[cat] {
		score += 2*title.Count(kw) + desc.Count(kw)
	}
	return score
}

// Text is a lower-cased, tokenized string for keyword matching.
type Text []string

func NewText(s string) Text {
	return tokenize(s)
}

// Count returns how often kw occurs as a run of whole tokens. "eth" does not
// match "method", and "layer 2" needs both tokens in order.
func (t Text) Count(kw string) int {
	want := strings.Fields(strings.ToLower(kw))
	if len(want) == 0 {
		return 0
	}
	n := 0
	for i := 0; i+len(want) <= len(t); i++ {
		if slices.Equal(t[i:i+len(want)], want) {
			n++
		}
	}
	return n
}

// Has reports whether kw occurs in t.
func (t Text) Has(kw string) bool {
	return t.Count(kw) > 0
}

func tokenize(s string) []string {
	var tokens []string
	for _, word := range strings.Fields(strings.ToLower(s)) {
		word = strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if word != "" {
			tokens = append(tokens, word)
		}
	}
	return tokens
}
