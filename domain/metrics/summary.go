package metrics

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"lobsim/domain/agent"
)

// AnnualTradingTime is 252 sessions of 6.5 hours.
const AnnualTradingTime = 252 * 6.5 * 3600 * float64(time.Second)

type Summary struct {
	Ticks        int     `json:"ticks"`
	Trades       int     `json:"trades"`
	Volume       int64   `json:"volume"`
	FirstMid     float64 `json:"first_mid"`
	LastMid      float64 `json:"last_mid"`
	Return       float64 `json:"return"`
	AnnualReturn float64 `json:"annual_return"`
	Volatility   float64 `json:"volatility"`
	Sharpe       float64 `json:"sharpe"`
	MaxDrawdown  float64 `json:"max_drawdown"`
	MeanSpread   float64 `json:"mean_spread"`
	OneSidedPct  float64 `json:"one_sided_pct"`

	Agents []AgentSummary `json:"agents,omitempty"`
}

type AgentSummary struct {
	Agent         string          `json:"agent"`
	Fills         int             `json:"fills"`
	Volume        int64           `json:"volume"`
	Cash          decimal.Decimal `json:"cash"`
	Inventory     int64           `json:"inventory"`
	Realized      decimal.Decimal `json:"realized_pnl"`
	Unrealized    decimal.Decimal `json:"unrealized_pnl"`
	Total         decimal.Decimal `json:"total_pnl"`
	Equity        decimal.Decimal `json:"equity"`
	TotalSlippage decimal.Decimal `json:"total_slippage"`
	AvgSlippage   decimal.Decimal `json:"avg_slippage"`
	MaxDrawdown   decimal.Decimal `json:"max_drawdown"`
}

// Summary computes run statistics from the kept snapshots. Returns are
// simple returns between consecutive two-sided mids; annualization scales
// the per-interval mean and deviation without compounding.
func (r *Recorder) Summary(accounts []*agent.Account) Summary {
	s := Summary{Ticks: len(r.snapshots), Trades: r.trades, Volume: r.volume}

	var mids []float64
	var interval time.Duration
	var spreadSum float64
	oneSided := 0
	for i, snap := range r.snapshots {
		if !snap.HasBid || !snap.HasAsk {
			oneSided++
			continue
		}
		mids = append(mids, snap.Mid)
		spreadSum += float64(snap.Spread)
		if i > 0 && interval == 0 {
			interval = snap.Time - r.snapshots[i-1].Time
		}
	}
	if n := len(r.snapshots); n > 0 {
		s.OneSidedPct = float64(oneSided) / float64(n)
	}
	if len(mids) > 0 {
		s.FirstMid, s.LastMid = mids[0], mids[len(mids)-1]
		s.MeanSpread = spreadSum / float64(len(mids))
		s.Return = s.LastMid/s.FirstMid - 1
		s.MaxDrawdown = maxDrawdown(mids)
	}

	if len(mids) > 2 && interval > 0 {
		rets := make([]float64, 0, len(mids)-1)
		for i := 1; i < len(mids); i++ {
			rets = append(rets, mids[i]/mids[i-1]-1)
		}
		mean, sd := meanStd(rets)
		periods := AnnualTradingTime / float64(interval)
		s.AnnualReturn = mean * periods
		s.Volatility = sd * math.Sqrt(periods)
		if s.Volatility > 0 {
			s.Sharpe = s.AnnualReturn / s.Volatility
		}
	}

	for _, acct := range accounts {
		s.Agents = append(s.Agents, r.agentSummary(acct))
	}
	return s
}

func (r *Recorder) agentSummary(acct *agent.Account) AgentSummary {
	mark := r.lastMark
	unreal := acct.Unrealized(mark)
	as := AgentSummary{
		Agent:         acct.ID(),
		Fills:         acct.Fills(),
		Volume:        acct.Volume(),
		Cash:          acct.Cash(),
		Inventory:     acct.Inventory(),
		Realized:      acct.Realized(),
		Unrealized:    unreal,
		Total:         acct.Realized().Add(unreal),
		Equity:        acct.Equity(mark),
		TotalSlippage: decimal.Zero,
		AvgSlippage:   decimal.Zero,
		MaxDrawdown:   decimal.Zero,
	}
	if st := r.slip[acct.ID()]; st != nil {
		as.TotalSlippage = st.total
		if st.qty > 0 {
			as.AvgSlippage = st.total.Div(decimal.NewFromInt(st.qty))
		}
	}

	var peak decimal.Decimal
	first := true
	for _, rec := range r.records {
		if rec.Agent != acct.ID() {
			continue
		}
		if first || rec.Equity.GreaterThan(peak) {
			peak, first = rec.Equity, false
		}
		if dd := peak.Sub(rec.Equity); dd.GreaterThan(as.MaxDrawdown) {
			as.MaxDrawdown = dd
		}
	}
	return as
}

// maxDrawdown is the largest peak-to-trough fall as a fraction of the peak.
func maxDrawdown(series []float64) float64 {
	peak, worst := series[0], 0.0
	for _, v := range series {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (peak - v) / peak; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

func meanStd(xs []float64) (float64, float64) {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var ss float64
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(ss / float64(len(xs)-1))
}
