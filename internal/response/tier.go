package response

import (
	"fmt"

	"mchatbot.io/support-backend/internal/analysis"
)

// Tier is a response strategy bucket. Higher values are more severe.
type Tier int

const (
	Conversational Tier = iota
	ModerateSupport
	HighDistress
	Crisis
)

const (
	highDistressThreshold = 0.7
	moderateThreshold     = 0.4
)

func (t Tier) String() string {
	switch t {
	case Crisis:
		return "crisis"
	case HighDistress:
		return "high_distress"
	case ModerateSupport:
		return "moderate_support"
	case Conversational:
		return "conversational"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(text []byte) error {
	for _, candidate := range []Tier{Conversational, ModerateSupport, HighDistress, Crisis} {
		if candidate.String() == string(text) {
			*t = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown response tier %q", text)
}

// TierFor classifies a single analysis result. Crisis detection always wins;
// otherwise the distress thresholds are strict.
func TierFor(r analysis.Result) Tier {
	switch {
	case r.CrisisDetected:
		return Crisis
	case r.DistressLevel > highDistressThreshold:
		return HighDistress
	case r.DistressLevel > moderateThreshold:
		return ModerateSupport
	default:
		return Conversational
	}
}
