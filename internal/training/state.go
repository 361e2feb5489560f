package training

import (
	"time"

	"github.com/tphakala/seld-go/internal/model"
	"github.com/tphakala/seld-go/internal/scoring"
)

// sentinelSELD is worse than any real composite score.
const sentinelSELD = 9999

// BestState records the epoch whose parameters the checkpoint holds.
type BestState struct {
	Epoch  int // -1 until the first improvement
	Scores scoring.Scores
}

// NewBestState returns the worst possible record.
func NewBestState() BestState {
	return BestState{
		Epoch:  -1,
		Scores: scoring.Scores{ER: 1, F: 0, LE: 180, LR: 0, SELD: sentinelSELD},
	}
}

// IsImprovement reports whether candidate should replace best. Ties count.
func IsImprovement(candidate scoring.Scores, best BestState) bool {
	return candidate.SELD <= best.Scores.SELD
}

// Advance returns the record after scoring epoch, and whether it changed.
func (b BestState) Advance(epoch int, scores scoring.Scores) (BestState, bool) {
	if !IsImprovement(scores, b) {
		return b, false
	}
	return BestState{Epoch: epoch, Scores: scores}, true
}

// Persist writes the parameters of m to the checkpoint at path, replacing
// any previous checkpoint.
func Persist(path string, m model.Model) error {
	return model.Save(path, m)
}

// Patience counts epochs toward the early stop limit. The counter advances on
// every epoch, improved or not.
type Patience struct {
	limit int
	count int
}

// NewPatience returns a counter that stops once it exceeds limit.
func NewPatience(limit int) *Patience {
	return &Patience{limit: limit}
}

// Tick counts one epoch and reports whether training should stop.
func (p *Patience) Tick() bool {
	p.count++
	return p.count > p.limit
}

// Count returns the epochs counted so far.
func (p *Patience) Count() int { return p.count }

// EpochResult is the outcome of one train/validate epoch.
type EpochResult struct {
	Epoch     int
	TrainLoss float64
	ValLoss   float64
	Val       scoring.Scores
	Improved  bool
	TrainTime time.Duration
	ValTime   time.Duration
}
