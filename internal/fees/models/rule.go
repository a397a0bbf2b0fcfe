package models

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	dErrors "escrowops/pkg/domain-errors"
)

// GasKind tags the network fee model.
type GasKind string

const (
	// GasFlat deducts a fixed amount of the network's own coin.
	GasFlat GasKind = "flat_gas"
	// GasUSD charges a fixed dollar amount, used by token networks.
	GasUSD GasKind = "usd_gas"
)

func (k GasKind) IsValid() bool {
	return k == GasFlat || k == GasUSD
}

// GasModel is exactly one of FlatGas(amount) or USDGas(usd). The zero value
// is invalid, so a rule can never carry neither or both.
type GasModel struct {
	kind   GasKind
	amount decimal.Decimal
}

func FlatGas(amount decimal.Decimal) GasModel {
	return GasModel{kind: GasFlat, amount: amount}
}

func USDGas(usd decimal.Decimal) GasModel {
	return GasModel{kind: GasUSD, amount: usd}
}

// NewGasModel rebuilds a model from its stored tag.
func NewGasModel(kind GasKind, amount decimal.Decimal) (GasModel, error) {
	if !kind.IsValid() {
		return GasModel{}, dErrors.New(dErrors.CodeInvariantViolation, "unknown gas model: "+string(kind))
	}
	return GasModel{kind: kind, amount: amount}, nil
}

func (g GasModel) Kind() GasKind           { return g.kind }
func (g GasModel) Amount() decimal.Decimal { return g.amount }

func (g GasModel) Equal(other GasModel) bool {
	return g.kind == other.kind && g.amount.Equal(other.amount)
}

func (g GasModel) String() string {
	return string(g.kind) + "=" + g.amount.String()
}

var (
	hundred        = decimal.NewFromInt(100)
	networkPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9-]{0,31}$`)
)

// NormalizeNetwork upper-cases and trims a network identifier.
func NormalizeNetwork(network string) string {
	return strings.ToUpper(strings.TrimSpace(network))
}

// FeeRule is the fee schedule of one network.
//
// Invariants:
//   - Network is unique and matches [A-Z0-9-]
//   - 0 <= FeePercentage <= 100
//   - Gas holds exactly one non-negative representation
//   - Version starts at 1 and increases by one per update
type FeeRule struct {
	Network       string
	FeePercentage decimal.Decimal
	Gas           GasModel
	Version       int
	UpdatedAt     time.Time
	UpdatedBy     string
}

// NewFeeRule validates a candidate rule. Version and audit fields are set by
// the store when the rule is applied.
func NewFeeRule(network string, percentage decimal.Decimal, gas GasModel) (*FeeRule, error) {
	network = NormalizeNetwork(network)
	if !networkPattern.MatchString(network) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid network identifier")
	}
	if percentage.IsNegative() || percentage.GreaterThan(hundred) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "fee_percentage must be between 0 and 100")
	}
	if !gas.kind.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "exactly one gas fee representation is required")
	}
	if gas.amount.IsNegative() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "gas fee must not be negative")
	}
	return &FeeRule{
		Network:       network,
		FeePercentage: percentage,
		Gas:           gas,
	}, nil
}

// Supersede stamps r as the successor of prev (nil for a new network).
func (r *FeeRule) Supersede(prev *FeeRule, by string, now time.Time) {
	r.Version = 1
	if prev != nil {
		r.Version = prev.Version + 1
	}
	r.UpdatedBy = by
	r.UpdatedAt = now
}

func (r *FeeRule) Clone() *FeeRule {
	c := *r
	return &c
}

// Summary is the audit detail for an applied rule.
func (r *FeeRule) Summary() string {
	return r.Network + ": fee=" + r.FeePercentage.String() + "% " + r.Gas.String() + " (v" + strconv.Itoa(r.Version) + ")"
}

// Defaults is the schedule installed on an empty store.
func Defaults() []*FeeRule {
	five := decimal.NewFromInt(5)
	return []*FeeRule{
		{Network: "BTC", FeePercentage: five, Gas: FlatGas(decimal.RequireFromString("0.0001"))},
		{Network: "ETH", FeePercentage: five, Gas: FlatGas(decimal.RequireFromString("0.01"))},
		{Network: "LTC", FeePercentage: five, Gas: FlatGas(decimal.RequireFromString("0.001"))},
		{Network: "USDT-BEP20", FeePercentage: five, Gas: USDGas(decimal.RequireFromString("0.5"))},
		{Network: "USDT-TRC20", FeePercentage: five, Gas: USDGas(decimal.RequireFromString("2.0"))},
	}
}
