package board

import "thirdangle/domain"

var badgeNames = map[string]string{
	"task_master_10":    "🏆 Task Master",
	"task_master_50":    "🏆 Task Expert",
	"task_master_100":   "🏆 Task Legend",
	"consistent_7_days": "⚡ Consistent",
}

// FormatBadge returns the display name of an achievement code. Unknown codes
// are shown as-is.
func FormatBadge(code string) string {
	if name, ok := badgeNames[code]; ok {
		return name
	}
	return code
}

// Tone is a semantic color hint for views.
type Tone string

const (
	ToneNeutral Tone = "neutral"
	ToneInfo    Tone = "info"
	ToneSuccess Tone = "success"
	ToneWarning Tone = "warning"
	ToneDanger  Tone = "danger"
)

// StatusTone colors a status badge.
func StatusTone(s domain.Status) Tone {
	switch s {
	case domain.StatusDone:
		return ToneSuccess
	case domain.StatusInProgress:
		return ToneInfo
	case domain.StatusBlocked:
		return ToneDanger
	default:
		return ToneNeutral
	}
}

// PriorityTone colors a priority badge.
func PriorityTone(p domain.Priority) Tone {
	switch p {
	case domain.PriorityHigh:
		return ToneDanger
	case domain.PriorityMedium:
		return ToneWarning
	case domain.PriorityLow:
		return ToneSuccess
	default:
		return ToneNeutral
	}
}

// BurnoutTone maps a burnout risk level ("high", "medium", "low").
func BurnoutTone(risk string) Tone {
	switch risk {
	case "high":
		return ToneDanger
	case "medium":
		return ToneWarning
	default:
		return ToneSuccess
	}
}
