package domain

// ProgramVariant identifies which token program owns a token account.
type ProgramVariant string

const (
	ProgramVariantStandard ProgramVariant = "STANDARD" // original token program
	ProgramVariantExtended ProgramVariant = "EXTENDED" // token-2022 with extensions
)

// ProgramVariants lists every variant a mint's balance may live under.
var ProgramVariants = []ProgramVariant{ProgramVariantStandard, ProgramVariantExtended}

// String returns the string representation of ProgramVariant.
func (v ProgramVariant) String() string {
	return string(v)
}

// IsValid checks if the variant is a valid value.
func (v ProgramVariant) IsValid() bool {
	return v == ProgramVariantStandard || v == ProgramVariantExtended
}

// Position is a single token account balance for the configured mint.
// Derived from chain state every tick, never stored.
type Position struct {
	Mint                string         // token mint address
	BalanceUnits        uint64         // raw amount in smallest units
	TokenAccountAddress string         // token account holding the balance
	OwnerProgramVariant ProgramVariant // program owning the account
}

// Holding aggregates every Position of one mint for one owner.
type Holding struct {
	Mint     string
	Owner    string
	Total    uint64     // sum of BalanceUnits across Accounts
	Accounts []Position // every account found, including empty ones
	// AssociatedAccounts maps variant to the owner's associated token account address.
	AssociatedAccounts map[ProgramVariant]string
}

// HasPosition reports whether any balance is held.
func (h *Holding) HasPosition() bool {
	return h != nil && h.Total > 0
}

// Primary returns the account a sell is expected to drain first.
// The associated token account wins when it holds a balance, otherwise
// the account with the largest balance. Returns nil when there are no accounts.
func (h *Holding) Primary() *Position {
	if h == nil || len(h.Accounts) == 0 {
		return nil
	}

	var best *Position
	for i := range h.Accounts {
		p := &h.Accounts[i]
		if ata, ok := h.AssociatedAccounts[p.OwnerProgramVariant]; ok && ata == p.TokenAccountAddress && p.BalanceUnits > 0 {
			return p
		}
		if best == nil || p.BalanceUnits > best.BalanceUnits {
			best = p
		}
	}
	return best
}
