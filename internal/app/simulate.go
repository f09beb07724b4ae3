package app

import (
	"context"
	"errors"
	"time"

	"arb-explorer/internal/fetcher"
	"arb-explorer/internal/opportunity"
	"arb-explorer/internal/service"
)

// SimulateAlert 通过一条虚构的机会记录走一遍告警流程。
func (a *App) SimulateAlert(ctx context.Context, direction opportunity.Direction, profit float64) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting 未启用")
	}
	if !direction.Known() {
		return errors.New("direction 必须为 Buy_Bin_Sell_Uni 或 Buy_Uni_Sell_Bin")
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	rec := opportunity.Record{
		Timestamp:     now,
		Direction:     direction,
		PriceLeft:     4300,
		PriceRight:    4300 * (1 + profit/1e6),
		OptimalAmount: 1,
		NetProfit:     profit,
		RoiPct:        profit / 4300 * 100,
	}
	static := &staticFetcher{snap: opportunity.Snapshot{
		ID:        "simulated",
		FetchedAt: now,
		Records:   []opportunity.Record{rec},
	}}

	svc, err := service.New(service.Options{
		AlertsEnabled:  true,
		AlertMinProfit: a.Config.Alerting.MinProfit,
		Channels:       a.channels(),
	}, a.newSession(ViewOptions{}), service.Deps{
		Fetcher:  static,
		Notifier: a.newNotifier(),
	}, a.Logger)
	if err != nil {
		return err
	}

	if profit < a.Config.Alerting.MinProfit {
		a.Logger.Warn().Float64("profit", profit).Float64("threshold", a.Config.Alerting.MinProfit).Msg("模拟利润低于阈值，不会触发告警")
	}
	_, _, err = svc.Refresh(ctx)
	return err
}

type staticFetcher struct {
	snap opportunity.Snapshot
}

func (s *staticFetcher) FetchSnapshot(context.Context, fetcher.Request) (opportunity.Snapshot, error) {
	return s.snap, nil
}

var _ fetcher.SnapshotFetcher = (*staticFetcher)(nil)
