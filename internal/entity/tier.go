package entity

import (
	"fmt"
	"strings"
	"time"
)

type Tier string

const (
	TierFree  Tier = "free"
	TierBasic Tier = "basic"
	TierPro   Tier = "pro"
)

// SubscriptionPeriod is the length of one paid Pro period.
const SubscriptionPeriod = 30 * 24 * time.Hour

// Plan holds the typed allotments of a tier. MonthlyLimit is zero for tiers
// that are not metered monthly; PackCredits is zero for tiers without a pack.
type Plan struct {
	MonthlyLimit int
	PackCredits  int
	MaxLength    Length
	Quality      Quality
}

func (t Tier) Plan() Plan {
	switch t {
	case TierFree:
		return Plan{MonthlyLimit: 5, MaxLength: LengthLong, Quality: Quality720p30}
	case TierBasic:
		return Plan{PackCredits: 5, MaxLength: LengthExtended, Quality: Quality1080p60}
	case TierPro:
		return Plan{MonthlyLimit: 50, MaxLength: LengthExtended, Quality: Quality4k60}
	default:
		return TierFree.Plan()
	}
}

func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierBasic, TierPro:
		return true
	default:
		return false
	}
}

func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown tier %q", s)
	}
	return t, nil
}

// NextMonthStart returns 00:00 UTC on the first day of the month after from.
func NextMonthStart(from time.Time) time.Time {
	from = from.UTC()
	return time.Date(from.Year(), from.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}

// NextReset computes the boundary that replaces an elapsed one. Pro keeps its
// subscription anniversary; every other tier rolls to the next month start.
func NextReset(t Tier, elapsed, now time.Time) time.Time {
	switch t {
	case TierPro:
		next := elapsed
		for !next.After(now) {
			next = next.Add(SubscriptionPeriod)
		}
		return next.UTC()
	case TierFree, TierBasic:
		return NextMonthStart(now)
	default:
		return NextMonthStart(now)
	}
}

type Quality string

const (
	Quality480p15  Quality = "480p15"
	Quality720p30  Quality = "720p30"
	Quality1080p60 Quality = "1080p60"
	Quality4k60    Quality = "4k60"
)

func (q Quality) rank() int {
	switch q {
	case Quality480p15:
		return 0
	case Quality720p30:
		return 1
	case Quality1080p60:
		return 2
	case Quality4k60:
		return 3
	default:
		return -1
	}
}

// Cap returns q, lowered to ceiling when it exceeds it. Unknown values
// resolve to the ceiling.
func (q Quality) Cap(ceiling Quality) Quality {
	if q.rank() < 0 || q.rank() > ceiling.rank() {
		return ceiling
	}
	return q
}

// ParseResolution maps the request's resolution selector onto a quality class.
func ParseResolution(s string) Quality {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "480p":
		return Quality480p15
	case "720p":
		return Quality720p30
	case "1080p":
		return Quality1080p60
	case "4k", "2160p":
		return Quality4k60
	default:
		return ""
	}
}

type Length string

const (
	LengthShort    Length = "Short (5s)"
	LengthMedium   Length = "Medium (15s)"
	LengthLong     Length = "Long (1m)"
	LengthDeepDive Length = "Deep Dive (2m)"
	LengthExtended Length = "Extended (5m)"
)

var lengthOrder = []Length{LengthShort, LengthMedium, LengthLong, LengthDeepDive, LengthExtended}

// ParseLength accepts the display label or a short alias. Empty input gives
// the medium default.
func ParseLength(s string) (Length, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return LengthMedium, nil
	}
	for _, l := range lengthOrder {
		if strings.EqualFold(s, string(l)) {
			return l, nil
		}
	}
	switch strings.ToLower(s) {
	case "short":
		return LengthShort, nil
	case "medium":
		return LengthMedium, nil
	case "long":
		return LengthLong, nil
	case "deep dive", "deep_dive", "deepdive":
		return LengthDeepDive, nil
	case "extended":
		return LengthExtended, nil
	}
	return "", fmt.Errorf("unknown length %q", s)
}

func (l Length) rank() int {
	for i, o := range lengthOrder {
		if o == l {
			return i
		}
	}
	return -1
}

// Exceeds reports whether l is longer than ceiling.
func (l Length) Exceeds(ceiling Length) bool {
	return l.rank() > ceiling.rank()
}

// Guideline is the duration instruction handed to the content generator.
func (l Length) Guideline() string {
	switch l {
	case LengthShort:
		return "Target duration: 5-10 seconds. Focus on a single, quick visual impact. No complex narration."
	case LengthMedium:
		return "Target duration: 15-20 seconds. Explain the core concept with 2-3 clear steps. Moderate pacing."
	case LengthLong:
		return "Target duration: ~60 seconds. Comprehensive explanation. Break down into 4-5 sections. Use `self.wait(2)` often. Detailed step-by-step."
	case LengthDeepDive:
		return "Target duration: 120+ seconds (CRITICAL: MUST BE LONG). This is a full tutorial.\n" +
			"- Break content into 6-8 distinct phases.\n" +
			"- Explain 'Why', 'How', and 'Examples'.\n" +
			"- Use `self.wait(3)` or more after every text block.\n" +
			"- If the topic is simple, show multiple examples or edge cases to fill time."
	case LengthExtended:
		return "Target duration: 4-5 minutes. A complete lesson split into 10+ phases with recaps between them. " +
			"Use `self.wait(3)` generously and revisit key ideas with new visuals."
	default:
		return "Target duration: ~15 seconds. Standard explanation."
	}
}
