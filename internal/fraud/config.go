package fraud

import (
	"time"

	"github.com/shopspring/decimal"
)

// Weights are the score contributions of each rule. Only the highest matching
// amount tier and failed-attempt tier count.
type Weights struct {
	Blacklist               int
	HighAmount              int
	ElevatedAmount          int
	Velocity                int
	FailedAttempts          int
	ExcessiveFailedAttempts int
	IncompleteData          int
	SuspiciousEmail         int
	UnusualHour             int
}

func DefaultWeights() Weights {
	return Weights{
		Blacklist:               100,
		HighAmount:              30,
		ElevatedAmount:          15,
		Velocity:                30,
		FailedAttempts:          20,
		ExcessiveFailedAttempts: 40,
		IncompleteData:          10,
		SuspiciousEmail:         15,
		UnusualHour:             10,
	}
}

type Config struct {
	Threshold      int
	VelocityWindow time.Duration
	MaxTxPerWindow int
	HighAmount     decimal.Decimal
	ElevatedAmount decimal.Decimal

	FailedAttemptsThreshold    int
	ExcessiveFailuresThreshold int

	// UnusualHourStart and UnusualHourEnd bound a UTC hour range [start, end).
	UnusualHourStart int
	UnusualHourEnd   int

	BlacklistEmails  []string
	BlacklistIPs     []string
	BlacklistDomains []string

	Weights Weights
}

func DefaultConfig() Config {
	return Config{
		Threshold:                  70,
		VelocityWindow:             time.Hour,
		MaxTxPerWindow:             5,
		HighAmount:                 decimal.NewFromInt(10000),
		ElevatedAmount:             decimal.NewFromInt(5000),
		FailedAttemptsThreshold:    3,
		ExcessiveFailuresThreshold: 5,
		UnusualHourStart:           2,
		UnusualHourEnd:             5,
		Weights:                    DefaultWeights(),
	}
}
