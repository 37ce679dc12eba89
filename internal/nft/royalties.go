package nft

import (
	"github.com/emberchain/ember/internal/primitives"
)

type payout struct {
	beneficiary primitives.AccountID
	amount      primitives.Balance
}

// splitSalePrice computes the royalty payouts for a sale and the
// remainder owed to the seller. An overcommitted schedule (total above
// 100%) would create value out of nothing, so it degrades to zero
// royalties and the seller receives the full price. Conservation holds
// in every case: sum(payouts) + remainder == price.
func splitSalePrice(schedule RoyaltiesSchedule, price primitives.Balance) ([]payout, primitives.Balance) {
	if len(schedule.Entitlements) == 0 || schedule.Total() > primitives.PermillOne() {
		return nil, price
	}
	payouts := make([]payout, 0, len(schedule.Entitlements))
	remainder := price
	for _, e := range schedule.Entitlements {
		amount := e.Fraction.Mul(price)
		payouts = append(payouts, payout{beneficiary: e.Beneficiary, amount: amount})
		remainder -= amount
	}
	return payouts, remainder
}

// listingRoyalties resolves the royalty schedule snapshot for a new
// listing. Collection level schedules take precedence over series level
// ones. Bundles must not involve series level royalties at all, the
// split across tokens would be ambiguous.
func (m *Module) listingRoyalties(tokens []primitives.TokenID) (RoyaltiesSchedule, error) {
	collection := tokens[0].Collection
	if len(tokens) > 1 {
		seen := make(map[primitives.SeriesID]struct{})
		for _, t := range tokens {
			if _, ok := seen[t.Series]; ok {
				continue
			}
			seen[t.Series] = struct{}{}
			schedule, err := m.store.SeriesRoyalties(collection, t.Series)
			if err != nil {
				return RoyaltiesSchedule{}, err
			}
			if schedule != nil {
				return RoyaltiesSchedule{}, ErrRoyaltiesProtection
			}
		}
	}
	if schedule, err := m.store.CollectionRoyalties(collection); err != nil {
		return RoyaltiesSchedule{}, err
	} else if schedule != nil {
		return *schedule, nil
	}
	if len(tokens) == 1 {
		if schedule, err := m.store.SeriesRoyalties(collection, tokens[0].Series); err != nil {
			return RoyaltiesSchedule{}, err
		} else if schedule != nil {
			return *schedule, nil
		}
	}
	return RoyaltiesSchedule{}, nil
}

// effectiveRoyalties is the schedule that would apply to a sale of the
// token right now, used by token info queries.
func (m *Module) effectiveRoyalties(token primitives.TokenID) (RoyaltiesSchedule, error) {
	if schedule, err := m.store.CollectionRoyalties(token.Collection); err != nil {
		return RoyaltiesSchedule{}, err
	} else if schedule != nil {
		return *schedule, nil
	}
	if schedule, err := m.store.SeriesRoyalties(token.Collection, token.Series); err != nil {
		return RoyaltiesSchedule{}, err
	} else if schedule != nil {
		return *schedule, nil
	}
	return RoyaltiesSchedule{}, nil
}
