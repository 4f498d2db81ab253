package classify

import (
	"strings"
	"time"
)

// Reason explains why a path was excluded from archival.
type Reason string

const (
	ReasonNotRaw        Reason = "not_a_raw_path"
	ReasonFirstOfMonth  Reason = "first_day_of_month"
	ReasonTooRecent     Reason = "too_recent"
	ReasonInvalidPath   Reason = "invalid_path"
	ReasonColumnMissing Reason = "path_column_missing"
)

// Verdict is the validator's decision for a single path.
type Verdict struct {
	Proceed bool
	Reason  Reason
}

func proceed() Verdict { return Verdict{Proceed: true} }

func ignore(reason Reason) Verdict { return Verdict{Reason: reason} }

// Validator applies the eligibility rules to classified paths.
type Validator struct {
	// MinAgeDays is the minimum partition age before archival (default 90).
	MinAgeDays int

	// InclusiveBoundary widens the exclusion to partitions exactly
	// MinAgeDays old. The default (strict) requires the partition to be
	// at least MinAgeDays+1 days old.
	InclusiveBoundary bool

	// Now overrides the clock, for tests. Nil means time.Now.
	Now func() time.Time
}

// DefaultValidator returns a validator with the standard 90-day strict rule.
func DefaultValidator() *Validator {
	return &Validator{MinAgeDays: 90}
}

// Validate decides whether a path may be archived. Rules are evaluated in
// order and the first match wins:
//
//  1. the path has no raw root segment
//  2. the partition is the first day of a month (boundary partitions stay)
//  3. the partition is not old enough
//  4. the origin could not be classified
//
// The verdict is deterministic for a fixed clock.
func (v *Validator) Validate(path string, cls Classification) Verdict {
	if !strings.Contains(path, RawRoot+"/") {
		return ignore(ReasonNotRaw)
	}
	if cls.Known && cls.Day == 1 {
		return ignore(ReasonFirstOfMonth)
	}
	if !cls.Known {
		return ignore(ReasonInvalidPath)
	}
	if !v.oldEnough(cls) {
		return ignore(ReasonTooRecent)
	}
	if cls.Origin == Unknown {
		return ignore(ReasonInvalidPath)
	}
	return proceed()
}

func (v *Validator) oldEnough(cls Classification) bool {
	now := time.Now()
	if v.Now != nil {
		now = v.Now()
	}
	minAge := v.MinAgeDays
	if minAge <= 0 {
		minAge = 90
	}

	partition := time.Date(cls.Year, time.Month(cls.Month), cls.Day, 0, 0, 0, 0, time.UTC)
	ageDays := int(now.UTC().Sub(partition).Hours() / 24)

	if v.InclusiveBoundary {
		return ageDays >= minAge
	}
	return ageDays > minAge
}
