package domain

// WrappedSOLMint is the mint of wrapped native SOL, the base asset of every trade.
const WrappedSOLMint = "So11111111111111111111111111111111111111112"

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL uint64 = 1_000_000_000
