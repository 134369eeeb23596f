package detector

import (
	"context"
	"math"

	"github.com/FewZ2372/polymarket-bot/internal/market"
	"github.com/FewZ2372/polymarket-bot/internal/opportunity"
)

const (
	whaleProfit  = 15
	volumeProfit = 10
	volumeConf   = 70
)

// DetectWhaleActivity follows a strong one-sided consensus among recent large trades.
func DetectWhaleActivity(ctx context.Context, snap *market.Snapshot, env *Env) ([]*opportunity.Opportunity, error) {
	if env.Whales == nil {
		return nil, nil
	}
	th := env.Thresholds
	now := snap.TakenAt()
	since := now.Add(-th.WhaleWindow)
	var out []*opportunity.Opportunity

	for _, m := range tradable(snap) {
		txs, err := env.Whales.RecentTransactions(ctx, m.ID, th.WhaleWindow)
		if err != nil {
			return nil, externalError("whales", err)
		}

		var yes, no float64
		count := 0
		for _, tx := range txs {
			if tx.AmountUSD < th.WhaleMinAmount || tx.Timestamp.Before(since) {
				continue
			}
			count++
			switch tx.Side {
			case market.SideYes:
				yes += tx.AmountUSD
			case market.SideNo:
				no += tx.AmountUSD
			}
		}

		total := yes + no
		if total < 2*th.WhaleMinAmount {
			continue
		}

		yesRatio := yes / total
		var action opportunity.Action
		var consensus float64
		switch {
		case yesRatio >= th.WhaleConsensus:
			action, consensus = opportunity.BuyYes, yesRatio
		case 1-yesRatio >= th.WhaleConsensus:
			action, consensus = opportunity.BuyNo, 1-yesRatio
		default:
			continue
		}

		o := opportunity.New(opportunity.WhaleActivity, action, whaleProfit, int(math.Round(consensus*100)), now).
			OnMarket(m).
			WithEvidence(opportunity.WhaleEvidence{Transactions: count, YesVolume: yes, NoVolume: no, Consensus: consensus})
		out = append(out, o)
	}

	return out, nil
}

// DetectAbnormalVolume follows the price move of a volume spike that no news explains.
func DetectAbnormalVolume(ctx context.Context, snap *market.Snapshot, env *Env) ([]*opportunity.Opportunity, error) {
	th := env.Thresholds
	var out []*opportunity.Opportunity

	for _, m := range tradable(snap) {
		baseline, ok := snap.VolumeBaseline(m.ID)
		if !ok || baseline <= 0 {
			continue
		}

		hourly := m.Volume24h / 24
		baselineHourly := baseline / 24
		ratio := hourly / baselineHourly
		if ratio < th.VolumeSpikeRatio {
			continue
		}
		if math.Abs(m.PriceChange1h) <= th.VolumeMinPriceChange {
			continue
		}

		if env.News != nil {
			items, err := env.News.Search(ctx, Keywords(m.Question, 4, 3), th.CorroborationWindow)
			if err != nil {
				return nil, externalError("news", err)
			}
			if len(items) > 0 {
				continue
			}
		}

		action := opportunity.BuyNo
		if m.PriceChange1h > 0 {
			action = opportunity.BuyYes
		}

		o := opportunity.New(opportunity.AbnormalVolume, action, volumeProfit, volumeConf, snap.TakenAt()).
			OnMarket(m).
			WithEvidence(opportunity.VolumeEvidence{
				HourlyVolume:   hourly,
				BaselineHourly: baselineHourly,
				Ratio:          ratio,
				PriceChange1h:  m.PriceChange1h,
			})
		out = append(out, o)
	}

	return out, nil
}
