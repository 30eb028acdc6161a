package monitor

import (
	"context"
	"errors"
	"time"

	"perparb/internal/application/port"
	appservice "perparb/internal/application/service"

	"github.com/rs/zerolog/log"
)

type ServiceDeps struct {
	Feeds           []FundingFeed
	Symbols         []string
	CycleEverySec   int
	PrintEveryMin   int
	SpreadThreshold float64
	Keeper          *appservice.KeeperService
	Perf            *appservice.PerformanceLogger
	Sink            port.Sink
	Repo            port.Repository
}

// Service 主循环：合并各交易所的费率推送到看板，按周期触发决策，
// 按周期输出绩效快照。
type Service struct {
	deps  ServiceDeps
	board *RateBoard
	fmt   *Formatter
}

func NewService(deps ServiceDeps) *Service {
	return &Service{
		deps:  deps,
		board: NewRateBoard(deps.Symbols),
		fmt:   NewFormatter(deps.SpreadThreshold),
	}
}

func (s *Service) Run(ctx context.Context) error {
	if len(s.deps.Feeds) == 0 {
		return errors.New("no funding feeds")
	}

	merged := make(chan port.FundingTick, 1024)

	// start feeds
	for _, feed := range s.deps.Feeds {
		if err := feed.Start(ctx); err != nil {
			return err
		}
		go func(in <-chan port.FundingTick) {
			for {
				select {
				case <-ctx.Done():
					return
				case t, ok := <-in:
					if !ok {
						return
					}
					merged <- t
				}
			}
		}(feed.Ticks())
	}
	log.Info().Int("feeds", len(s.deps.Feeds)).Msg("✓ funding feeds started")

	cycleEvery := time.Duration(s.deps.CycleEverySec) * time.Second
	if cycleEvery <= 0 {
		cycleEvery = time.Minute
	}
	cycleTicker := time.NewTicker(cycleEvery)
	defer cycleTicker.Stop()

	printEvery := time.Duration(s.deps.PrintEveryMin) * time.Minute
	if printEvery <= 0 {
		printEvery = 5 * time.Minute
	}
	snapTicker := time.NewTicker(printEvery)
	defer snapTicker.Stop()

	// initial live line
	_ = s.deps.Sink.WriteLive(s.fmt.Render(s.board, nil, RenderLive))

	for {
		select {
		case <-ctx.Done():
			_ = s.deps.Sink.NewLine()
			return ctx.Err()

		case <-cycleTicker.C:
			if err := s.deps.Keeper.RunCycle(ctx, s.board.Rates()); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn().Err(err).Msg("decision cycle failed")
			}

		case now := <-snapTicker.C:
			metrics := s.deps.Perf.GetPerformanceMetrics(0)
			line := s.fmt.Render(s.board, metrics, RenderSnapshot)
			_ = s.deps.Sink.WriteSnapshot(now, line)
			if s.deps.Repo != nil {
				_ = s.deps.Repo.SaveMetricsSnapshot(ctx, now.UnixMilli(), line)
			}

		case t := <-merged:
			if s.board.Apply(t) {
				_ = s.deps.Sink.WriteLive(s.fmt.Render(s.board, nil, RenderLive))
			}
		}
	}
}
