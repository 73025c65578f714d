package ledger

// The persisted namespace is flat, partitioned by a single leading byte per
// logical map. The byte values are part of the on-disk format; changing them
// orphans existing state.
const (
	PrefixTokenCounter  byte = 0x02 // -> last allocated token id
	PrefixTokenState    byte = 0x03 // tokenId -> TokenState JSON
	PrefixAccountToken  byte = 0x04 // account+tokenId -> balance
	PrefixTokenAccount  byte = 0x05 // tokenId+account -> balance (holder scans)
	PrefixTokenSupply   byte = 0x06 // tokenId -> total supply of that id
	PrefixTotalSupply   byte = 0x07 // -> supply across all token ids
	PrefixAccountTotal  byte = 0x08 // account -> balance across all token ids
	PrefixSuperAdmin    byte = 0x20 // -> role holder address
	PrefixAdmin         byte = 0x21 // -> role holder address
	PrefixJudge         byte = 0x22 // -> role holder address
	PrefixWhitelist     byte = 0x23 // collateral address -> 1
	PrefixReserve       byte = 0x30 // tokenId -> pool trading liquidity
	PrefixStaged        byte = 0x38 // tokenId -> amount received, awaiting 2nd leg
	PrefixProposition   byte = 0x40 // liquidityTokenId -> proposition text
	PrefixUnjudged      byte = 0x46 // liquidityTokenId -> liquidityTokenId
	PrefixWinning       byte = 0x47 // winning tokenId -> 1
	PrefixReentrancy    byte = 0x50 // present while a guarded call is in flight
	PrefixCollateral    byte = 0x60 // asset+account -> collateral balance
)

// Key builds a storage key from a partition byte and concatenated parts.
func Key(prefix byte, parts ...[]byte) []byte {
	n := 1
	for _, p := range parts {
		n += len(p)
	}
	k := make([]byte, 1, n)
	k[0] = prefix
	for _, p := range parts {
		k = append(k, p...)
	}
	return k
}
