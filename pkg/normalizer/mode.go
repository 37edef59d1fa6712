package normalizer

// Mode selects how reasoning content is rendered to the client.
type Mode int

const (
	// ModeReasoning strips all markers and moves thinking text into the
	// reasoning_content delta field.
	ModeReasoning Mode = iota

	// ModeThink renders reasoning inline between <think> tags.
	ModeThink

	// ModeStrip removes all markers so reasoning folds into plain output.
	ModeStrip

	// ModeDetails renders reasoning as a collapsible <details> block with a
	// generated summary.
	ModeDetails

	// ModeRaw leaves the canonical <reasoning> markers in place. It is the
	// fallback for unrecognized configuration values.
	ModeRaw
)

// ParseMode maps a configuration string to a Mode. Unrecognized values
// return ModeRaw and ok=false so the caller can warn without failing
// startup.
func ParseMode(s string) (Mode, bool) {
	switch s {
	case "reasoning":
		return ModeReasoning, true
	case "think":
		return ModeThink, true
	case "strip":
		return ModeStrip, true
	case "details":
		return ModeDetails, true
	default:
		return ModeRaw, false
	}
}

// String returns the configuration spelling of the mode.
func (m Mode) String() string {
	switch m {
	case ModeReasoning:
		return "reasoning"
	case ModeThink:
		return "think"
	case ModeStrip:
		return "strip"
	case ModeDetails:
		return "details"
	default:
		return "raw"
	}
}
