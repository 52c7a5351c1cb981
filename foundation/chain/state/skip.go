package state

// Skip is a bitset of validation stages to bypass. Reindexing and tests
// use these; normal block production and ingestion never set any.
type Skip uint32

const (
	SkipNothing               Skip = 0
	SkipWitnessSignature      Skip = 1 << 0
	SkipTransactionSignatures Skip = 1 << 1
	SkipTransactionDupeCheck  Skip = 1 << 2
	SkipTaposCheck            Skip = 1 << 3
	SkipMerkleCheck           Skip = 1 << 4
	SkipAuthorityCheck        Skip = 1 << 5
	SkipValidation            Skip = 1 << 6
	SkipBlockSizeCheck        Skip = 1 << 7
	SkipWitnessSchedule       Skip = 1 << 8
	SkipUndoHistory           Skip = 1 << 9
)

// SkipReindex is the skip set trusted replay uses: the blocks were
// validated when they were first accepted.
const SkipReindex = SkipWitnessSignature | SkipTransactionSignatures |
	SkipTransactionDupeCheck | SkipTaposCheck | SkipMerkleCheck |
	SkipAuthorityCheck | SkipValidation | SkipWitnessSchedule |
	SkipUndoHistory

// Has reports whether the given stage is skipped.
func (s Skip) Has(flag Skip) bool {
	return s&flag != 0
}
