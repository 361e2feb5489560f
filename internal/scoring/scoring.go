// Package scoring computes the location-aware detection and class-aware
// localization metrics of SELD systems from folders of detection files.
package scoring

import (
	"fmt"
	"maps"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/tphakala/seld-go/internal/conf"
	"github.com/tphakala/seld-go/internal/errors"
	"github.com/tphakala/seld-go/internal/logger"
	"github.com/tphakala/seld-go/internal/output"
)

// Scores holds the four sub-metrics and their composite. Lower SELD is better.
type Scores struct {
	ER   float64 `json:"er"`
	F    float64 `json:"f"`
	LE   float64 `json:"le"` // degrees
	LR   float64 `json:"lr"`
	SELD float64 `json:"seld"`
}

func (s Scores) String() string {
	return fmt.Sprintf("%.2f/%.2f/%.2f/%.2f/%.2f", s.ER, s.F, s.LE, s.LR, s.SELD)
}

// Scorer compares prediction folders against one reference folder.
type Scorer struct {
	refDir         string
	framesPerBlock int
	doaThresh      float64
}

// New builds a scorer reading references from the dataset metadata folder.
func New(settings *conf.Settings) *Scorer {
	return NewScorer(settings.MetadataDir(), settings.Scoring.LabelFramesPerBlock, settings.Scoring.LadDoaThresh)
}

// NewScorer builds a scorer over explicit parameters. doaThresh is in degrees.
func NewScorer(refDir string, framesPerBlock int, doaThresh float64) *Scorer {
	return &Scorer{refDir: refDir, framesPerBlock: framesPerBlock, doaThresh: doaThresh}
}

// Score evaluates every .csv file in folder against the reference file of
// the same name. Each call starts from empty counts.
func (s *Scorer) Score(folder string) (Scores, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return Scores{}, scoringError(fmt.Errorf("scoring: list %s: %w", folder, err))
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".csv") {
			files = append(files, e.Name())
		}
	}
	slices.Sort(files)
	if len(files) == 0 {
		return Scores{}, scoringError(fmt.Errorf("scoring: no prediction files in %s", folder))
	}

	var acc counts
	for _, name := range files {
		pred, err := output.ReadDetections(filepath.Join(folder, name))
		if err != nil {
			return Scores{}, err
		}
		refPath := filepath.Join(s.refDir, name)
		ref, err := output.ReadReference(refPath)
		if err != nil {
			return Scores{}, errors.New(fmt.Errorf("scoring: reference for %s: %w", name, err)).
				Category(errors.CategoryData).
				FileContext(refPath).
				Build()
		}
		acc.add(s.compare(ref, pred))
	}

	scores := acc.scores()
	GetLogger().Debug("folder scored",
		logger.String("folder", folder),
		logger.Int("files", len(files)),
		logger.Int("reference_events", acc.nRef),
		logger.Float64("seld", scores.SELD))

	return scores, nil
}

func scoringError(err error) error {
	return errors.New(err).Category(errors.CategoryScoring).Component("scoring").Build()
}

// counts accumulates over blocks and files.
type counts struct {
	tp, fp, fn int
	s, d, i    int
	nRef       int

	deSum float64 // summed angular distance of matched pairs
	deTP  int     // matched reference tracks
	deFN  int     // reference tracks without a prediction
}

func (c *counts) add(o counts) {
	c.tp += o.tp
	c.fp += o.fp
	c.fn += o.fn
	c.s += o.s
	c.d += o.d
	c.i += o.i
	c.nRef += o.nRef
	c.deSum += o.deSum
	c.deTP += o.deTP
	c.deFN += o.deFN
}

func (c *counts) scores() Scores {
	var sc Scores

	sc.ER = float64(c.s+c.d+c.i) / float64(max(c.nRef, 1))

	if denom := 2*c.tp + c.fp + c.fn; denom > 0 {
		sc.F = 2 * float64(c.tp) / float64(denom)
	}

	sc.LE = 180
	if c.deTP > 0 {
		sc.LE = c.deSum / float64(c.deTP)
	}
	if denom := c.deTP + c.deFN; denom > 0 {
		sc.LR = float64(c.deTP) / float64(denom)
	}

	sc.SELD = (sc.ER + (1 - sc.F) + sc.LE/180 + (1 - sc.LR)) / 4
	return sc
}

type blockClass struct{ block, class int }

// compare scores one file. Frames are grouped into blocks. Within a block
// every reference track and every prediction slot of a class is represented
// by its mean direction, and the two sides are paired by minimum total
// angular distance.
func (s *Scorer) compare(ref, pred output.Frames) counts {
	refDirs := s.aggregate(ref, func(d output.Detection, _ int) int { return d.Track })
	predDirs := s.aggregate(pred, func(_ output.Detection, slot int) int { return slot })

	lastBlock := -1
	for k := range refDirs {
		lastBlock = max(lastBlock, k.block)
	}
	for k := range predDirs {
		lastBlock = max(lastBlock, k.block)
	}

	perBlockFP := make([]int, lastBlock+1)
	perBlockFN := make([]int, lastBlock+1)

	var c counts
	for k, refs := range refDirs {
		c.nRef += len(refs)
		preds := predDirs[k]

		cost := make([][]float64, len(refs))
		for i, r := range refs {
			cost[i] = make([]float64, len(preds))
			for j, p := range preds {
				cost[i][j] = angularDistance(r, p)
			}
		}

		matched := 0
		for i, j := range assign(cost) {
			if j < 0 {
				perBlockFN[k.block]++
				c.deFN++
				continue
			}
			matched++
			dist := cost[i][j]
			c.deSum += dist
			c.deTP++
			if dist <= s.doaThresh {
				c.tp++
			} else {
				perBlockFP[k.block]++
			}
		}
		perBlockFP[k.block] += len(preds) - matched
	}
	for k, preds := range predDirs {
		if _, ok := refDirs[k]; !ok {
			perBlockFP[k.block] += len(preds)
		}
	}

	for b := range perBlockFP {
		fp, fn := perBlockFP[b], perBlockFN[b]
		c.fp += fp
		c.fn += fn
		c.s += min(fp, fn)
		c.d += max(0, fn-fp)
		c.i += max(0, fp-fn)
	}
	return c
}

// aggregate sums unit direction vectors per (block, class, source). The
// source of a detection comes from key, given the detection and its slot,
// i.e. how many detections of the same class precede it in the frame.
// Sources are returned in ascending key order.
func (s *Scorer) aggregate(frames output.Frames, key func(d output.Detection, slot int) int) map[blockClass][]r3.Vec {
	sums := make(map[blockClass]map[int]r3.Vec)
	for frame, detections := range frames {
		block := frame / s.framesPerBlock
		slots := make(map[int]int)
		for _, d := range detections {
			k := blockClass{block, d.Class}
			src := key(d, slots[d.Class])
			slots[d.Class]++

			if sums[k] == nil {
				sums[k] = make(map[int]r3.Vec)
			}
			v := sums[k][src]
			if dir := d.Vec(); r3.Norm(dir) > 0 {
				v = r3.Add(v, r3.Unit(dir))
			}
			sums[k][src] = v
		}
	}

	dirs := make(map[blockClass][]r3.Vec, len(sums))
	for k, bySource := range sums {
		keys := slices.Sorted(maps.Keys(bySource))
		vecs := make([]r3.Vec, len(keys))
		for i, src := range keys {
			vecs[i] = bySource[src]
		}
		dirs[k] = vecs
	}
	return dirs
}

// angularDistance returns the angle between a and b in degrees, 180 when
// either has no direction.
func angularDistance(a, b r3.Vec) float64 {
	if r3.Norm(a) == 0 || r3.Norm(b) == 0 {
		return 180
	}
	cos := math.Max(-1, math.Min(1, r3.Cos(a, b)))
	return math.Acos(cos) * 180 / math.Pi
}
