package enums

// BalanceStatus is the outcome of a vendor balance pre-check.
type BalanceStatus string

const (
	BalanceStatusSufficient   BalanceStatus = "sufficient"
	BalanceStatusInsufficient BalanceStatus = "insufficient_balance"
	BalanceStatusUnavailable  BalanceStatus = "unavailable"
)

// String implements fmt.Stringer.
func (b BalanceStatus) String() string {
	return string(b)
}
