package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/johnagius/eikon-eod/internal/domain"
	"github.com/johnagius/eikon-eod/internal/store"
)

var unlockedRecords = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "eod_unlocked_records",
	Help: "Records from the previous business day that are missing or not locked",
}, []string{"location"})

// Sweeper runs the nightly lock sweep: for each configured location it checks
// yesterday's record and flags sheets that were never completed or left
// unlocked, so the back office catches them before banking.
type Sweeper struct {
	cron      *cron.Cron
	records   *store.RecordStore
	locations []string
	schedule  string
	log       *zap.Logger
}

func New(records *store.RecordStore, locations []string, schedule string, log *zap.Logger) *Sweeper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{
		cron:      cron.New(),
		records:   records,
		locations: locations,
		schedule:  schedule,
		log:       log,
	}
}

// Start registers and launches the sweep job.
func (s *Sweeper) Start() {
	if len(s.locations) == 0 {
		s.log.Info("no locations configured, lock sweep disabled")
		return
	}

	if _, err := s.cron.AddFunc(s.schedule, s.sweep); err != nil {
		s.log.Error("failed to schedule lock sweep", zap.Error(err))
		return
	}
	s.cron.Start()
	s.log.Info("lock sweep scheduled", zap.String("schedule", s.schedule))
}

func (s *Sweeper) Stop() {
	s.cron.Stop()
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	date := time.Now().AddDate(0, 0, -1).Format(domain.DateLayout)
	for _, loc := range s.locations {
		flagged := 0
		rec, err := s.records.Get(ctx, date, loc)
		switch {
		case errors.Is(err, store.ErrNotFound):
			flagged = 1
			s.log.Warn("no end-of-day record for previous business day",
				zap.String("date", date), zap.String("location", loc))
		case err != nil:
			s.log.Error("lock sweep read failed",
				zap.String("location", loc), zap.Error(err))
			continue
		case !rec.Locked():
			flagged = 1
			s.log.Warn("end-of-day record left unlocked",
				zap.String("date", date), zap.String("location", loc),
				zap.String("staff", rec.Staff))
		}
		unlockedRecords.WithLabelValues(loc).Set(float64(flagged))
	}
}
