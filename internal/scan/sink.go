package scan

import (
	"context"
	"sync"

	"github.com/rewired-gh/skinscout/internal/logger"
	"github.com/rewired-gh/skinscout/internal/models"
)

// Alert is one newly seen match.
type Alert struct {
	Mode  Mode
	RunID string
	Item  models.Item
	// URL is the listing page of the item's name.
	URL string
}

// Sink delivers alerts.
type Sink interface {
	Deliver(ctx context.Context, a Alert) error
}

// LogSink writes alerts to the log.
type LogSink struct{}

func (LogSink) Deliver(_ context.Context, a Alert) error {
	base := a.Item.Base()
	switch it := a.Item.(type) {
	case models.PatternItem:
		logger.Info("Match [%s] %s listing %s page %d price %s avg %s overprice %s%% pattern %g seed %d %s",
			a.Mode, base.Name, base.ListingID, base.Page, base.Price, it.AveragePrice.Round(2),
			it.OverpricePercent(), it.PatternValue, it.PatternSeed, a.URL)
	case models.DecorationItem:
		logger.Info("Match [%s] %s listing %s page %d price %s avg %s overprice %s%% decorations %d total %s %s",
			a.Mode, base.Name, base.ListingID, base.Page, base.Price, it.AveragePrice.Round(2),
			it.OverpricePercent(), len(it.Decorations), it.TotalValue.Round(2), a.URL)
	default:
		logger.Info("Match [%s] %s listing %s page %d price %s %s",
			a.Mode, base.Name, base.ListingID, base.Page, base.Price, a.URL)
	}
	return nil
}

// SeenSet records listing IDs that were already alerted on.
type SeenSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// NewSeenSet creates an empty SeenSet.
func NewSeenSet() *SeenSet {
	return &SeenSet{ids: make(map[string]struct{})}
}

// Add records id and reports whether it was new.
func (s *SeenSet) Add(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

// Len returns the number of recorded IDs.
func (s *SeenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}
