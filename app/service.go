package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/crisisworks/lifeline/config"
	"github.com/crisisworks/lifeline/core/access"
	"github.com/crisisworks/lifeline/core/model"
	"github.com/crisisworks/lifeline/core/recovery"
	"github.com/crisisworks/lifeline/core/transpo"
	"github.com/crisisworks/lifeline/infra/logger"
	"github.com/crisisworks/lifeline/internal/eventbus"
	"github.com/crisisworks/lifeline/pkg/export"
)

// Service wires the transportation network, the access index and the
// scheduler together for one configured scenario.
type Service struct {
	Scheduler *recovery.Scheduler

	cfg *config.Config
	bus *eventbus.Bus
	log logger.Logger
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")
	net, err := transpo.NewNetwork(cfg.Network.Nodes, cfg.Network.Links)
	if err != nil {
		return nil, fmt.Errorf("transportation network: %w", err)
	}
	ix, err := access.Build(cfg.Access, net.Nodes())
	if err != nil {
		return nil, fmt.Errorf("access index: %w", err)
	}
	bus := eventbus.New()
	sched, err := recovery.New(cfg.Scheduler, nil, net, ix, bus, logg)
	if err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}
	return &Service{Scheduler: sched, cfg: cfg, bus: bus, log: logg}, nil
}

// Run executes the configured scenario and writes the event table and the
// summary to the configured outputs.
func (s *Service) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sub := s.bus.SubscribeBuffered(1024)
	defer s.bus.Unsubscribe(sub)

	res, err := s.Scheduler.ScheduleRecovery(recovery.Request{
		Disruptions:   s.cfg.Disruptions,
		RepairOrder:   s.cfg.RepairOrder,
		CrewLocations: s.cfg.Crews,
	})
	if err != nil {
		return err
	}
	s.logRunEvents(sub)

	for _, infra := range model.Infras {
		st := res.Stats[infra]
		if st.Repaired == 0 {
			continue
		}
		s.log.Infof("%s: %d repairs, %.0f crew travel minutes, %d recovery seconds",
			infra, st.Repaired, st.TravelMinutes, st.RecoverySeconds)
	}
	if len(res.NoRedundancy) > 0 {
		s.log.Warnf("components without redundant access: %v", res.NoRedundancy)
	}

	if err := s.write(s.cfg.Output.EventsPath, func(w io.Writer) error {
		if s.cfg.Output.Format == "json" {
			return export.WriteEventsJSON(w, res.Events)
		}
		return export.WriteEventsCSV(w, res.Events)
	}); err != nil {
		return fmt.Errorf("write events: %w", err)
	}
	if err := s.write(s.cfg.Output.SummaryPath, func(w io.Writer) error {
		if s.cfg.Output.Format == "json" {
			return export.WriteSummaryJSON(w, res.Summary)
		}
		return export.WriteSummaryCSV(w, res.Summary)
	}); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

// logRunEvents drains the bus subscription accumulated during the run.
func (s *Service) logRunEvents(sub <-chan eventbus.Event) {
	for {
		select {
		case e := <-sub:
			switch ev := e.(type) {
			case recovery.DispatchEvent:
				s.log.Infof("crew %s#%d -> %s via %s, repair %d..%d",
					ev.Infra, ev.CrewID, ev.Component, ev.AccessNode, ev.RecoveryStart, ev.RecoveryEnd)
			case recovery.DeferEvent:
				s.log.Infof("deferred %s: %s %v", ev.Component, ev.Reason, ev.Blockers)
			case recovery.LinkRepairEvent:
				s.log.Infof("link %s passable from %d", ev.Link, ev.Completion)
			}
		default:
			return
		}
	}
}

func (s *Service) write(path string, fn func(io.Writer) error) error {
	if path == "" {
		return fn(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	s.bus.Close()
	return nil
}
