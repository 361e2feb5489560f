// model.go defines the persisted records of a training run
package datastore

import "time"

// SplitResult is one completed split: the checkpoint epoch, its validation
// scores and the test scores of the restored checkpoint.
type SplitResult struct {
	ID         uint      `gorm:"primaryKey"`
	CreatedAt  time.Time `gorm:"index"`
	RunID      string    `gorm:"index;type:varchar(36)"` // trace id shared by every split of one invocation
	UniqueName string    `gorm:"index:idx_split_results_unique_name"`
	TaskID     string
	JobID      string
	Dataset    string
	Mode       string
	TestFold   int

	BestEpoch int
	Epochs    int

	ValER   float64
	ValF    float64
	ValLE   float64
	ValLR   float64
	ValSELD float64

	TestLoss float64
	TestER   float64
	TestF    float64
	TestLE   float64
	TestLR   float64
	TestSELD float64

	Duration time.Duration

	EpochRecords []EpochRecord `gorm:"foreignKey:SplitResultID;constraint:OnDelete:CASCADE"`
}

// EpochRecord is the outcome of one train/validate epoch.
type EpochRecord struct {
	ID            uint `gorm:"primaryKey"`
	SplitResultID uint `gorm:"index;not null"`
	Epoch         int
	TrainLoss     float64
	ValLoss       float64
	ER            float64
	F             float64
	LE            float64
	LR            float64
	SELD          float64
	Improved      bool
	TrainTime     time.Duration
	ValTime       time.Duration
}
