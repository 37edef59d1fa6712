// Package normalizer converts the upstream's phase-tagged delta stream into
// client-consumable deltas under a configurable rendering mode.
//
// The upstream interleaves "thinking" and "answer" phases and wraps
// reasoning in collapsible HTML markup, splitting markers arbitrarily
// across chunks. A Session rebuilds a stable output shape from that: it
// rewrites markup to a canonical marker pair, splices the reasoning→answer
// boundary using the previously observed phase, and renders the result per
// the configured mode.
//
// Each streaming request owns exactly one Session; sessions are not safe
// for concurrent use and never shared across requests.
package normalizer

import (
	"strings"

	"go.uber.org/zap"
)

// Phase classifies an upstream delta.
type Phase string

const (
	PhaseThinking Phase = "thinking"
	PhaseAnswer   Phase = "answer"
	PhaseToolCall Phase = "tool_call"
	PhaseOther    Phase = "other"
)

// Event is the slice of a decoded upstream record the normalizer consumes.
type Event struct {
	Phase Phase

	// Delta is the primary text delta.
	Delta string

	// Edit is the secondary rewrite text, used when Delta is empty.
	Edit string
}

// Kind tags a normalized delta.
type Kind int

const (
	// KindNone means the event produced no output.
	KindNone Kind = iota

	// KindContent is ordinary answer text.
	KindContent

	// KindReasoning is reasoning text surfaced as a separate field.
	KindReasoning

	// KindToolCall is a raw tool-invocation fragment for external reassembly.
	KindToolCall
)

// Delta is the zero-or-one output of transforming one event.
type Delta struct {
	Kind Kind
	Text string
}

// Session holds the per-stream normalizer state. The last observed phase
// disambiguates the answer-phase boundary splice, so it must be scoped to a
// single streaming session; sharing it across requests lets concurrent
// streams corrupt each other's splice decisions.
type Session struct {
	mode      Mode
	lastPhase Phase

	// inToolCall tracks an unclosed tool wrapper so that a trailing close
	// fragment arriving under the "other" phase is still captured.
	inToolCall bool

	logger *zap.Logger
}

// NewSession creates a Session for one streaming request. The first
// boundary decision assumes a preceding thinking phase, matching the
// upstream's stream shape.
func NewSession(mode Mode, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		mode:      mode,
		lastPhase: PhaseThinking,
		logger:    logger,
	}
}

// Transform converts one decoded record into zero-or-one normalized delta.
// It never fails: events it cannot make sense of yield a KindNone delta and
// the stream continues.
func (s *Session) Transform(ev Event) Delta {
	phase := ev.Phase
	if phase == "" {
		phase = PhaseOther
	}

	content := ev.Delta
	if content == "" {
		content = ev.Edit
	}
	if content == "" {
		return Delta{}
	}

	// Tool-call fragments bypass the reasoning pipeline entirely. An
	// "other" event carrying the trailing wrapper marker of an unclosed
	// block is a continuation of the tool call.
	if phase == PhaseToolCall || (s.inToolCall && phase == PhaseOther && strings.Contains(content, toolBlockClose)) {
		phase = PhaseToolCall
		if strings.Contains(content, toolBlockPrefix) {
			s.inToolCall = true
		}
		if strings.Contains(content, toolBlockClose) {
			s.inToolCall = false
		}

		frag := exciseToolWrapper(content)
		s.lastPhase = phase
		if frag == "" {
			return Delta{}
		}
		return Delta{Kind: KindToolCall, Text: frag}
	}

	// Answer events enter the extraction pipeline only when they carry
	// reasoning markup: the closing boundary or a trailing summary.
	boundary := strings.Contains(content, "summary>") ||
		strings.Contains(content, "</details>") ||
		strings.Contains(content, closeMarker)
	if phase == PhaseThinking || (phase == PhaseAnswer && boundary) {
		content = s.extractThinking(phase, content)
	}

	s.lastPhase = phase

	switch {
	case s.mode == ModeReasoning && phase == PhaseThinking:
		return Delta{Kind: KindReasoning, Text: content}
	case content != "":
		return Delta{Kind: KindContent, Text: content}
	default:
		return Delta{}
	}
}

// extractThinking runs the thinking-block pipeline: closed-block removal,
// canonical marker rewriting, the answer-phase boundary splice, and the
// rendering-mode substitution.
func (s *Session) extractThinking(phase Phase, content string) string {
	content = stripClosedBlocks(content)
	content = stripDeprecatedTags(content)

	if phase == PhaseThinking {
		content = summaryLineRe.ReplaceAllString(content, "\n\n")
	}

	content = canonicalize(content)

	// before holds the pre-splice text; details mode mines it for the
	// trailing summary.
	var before string
	if phase == PhaseAnswer {
		if idx := strings.Index(content, closeMarker); idx >= 0 {
			before = content[:idx+len(closeMarker)]
			after := content[idx+len(closeMarker):]

			if strings.TrimSpace(after) != "" {
				switch s.lastPhase {
				case PhaseThinking:
					// Reasoning→answer boundary splice: close the block
					// and append the answer tail, stripping at most one
					// leading newline.
					content = "\n\n" + closeMarker + "\n\n" + strings.TrimPrefix(after, "\n")
				case PhaseAnswer:
					// The block was already closed on a prior event.
					content = ""
				}
			} else {
				content = "\n\n" + closeMarker
			}
		}
	}

	return s.render(phase, content, before)
}

// render applies the rendering-mode substitution to the canonical markers.
func (s *Session) render(phase Phase, content, before string) string {
	switch s.mode {
	case ModeReasoning:
		if phase == PhaseThinking {
			content = quotePrefixRe.ReplaceAllString(content, "\n")
		}
		content = summaryLineRe.ReplaceAllString(content, "")
		content = openMarkerNewlinesRe.ReplaceAllString(content, "")
		content = closeMarkerNewlinesRe.ReplaceAllString(content, "")

	case ModeThink:
		if phase == PhaseThinking {
			content = quotePrefixRe.ReplaceAllString(content, "\n")
		}
		content = summaryLineRe.ReplaceAllString(content, "")
		content = strings.ReplaceAll(content, openMarker, "<think>")
		content = strings.ReplaceAll(content, closeMarker, "</think>")

	case ModeStrip:
		content = summaryLineRe.ReplaceAllString(content, "")
		content = openMarkerNewlinesRe.ReplaceAllString(content, "")
		content = strings.ReplaceAll(content, closeMarker, "")

	case ModeDetails:
		if phase == PhaseThinking {
			content = quotePrefixRe.ReplaceAllString(content, "\n")
		}
		content = strings.ReplaceAll(content, openMarker, `<details type="reasoning" open><div>`)

		var thoughts string
		if phase == PhaseAnswer {
			if summary := summarySpanRe.FindString(before); summary != "" {
				thoughts = "\n\n" + summary
			} else if m := durationAttrRe.FindStringSubmatch(before); m != nil {
				thoughts = "\n\n<summary>Thought for " + m[1] + " seconds</summary>"
			}
		}
		content = strings.ReplaceAll(content, closeMarker, "</div>"+thoughts+"</details>")

	default:
		// Unrecognized mode: keep canonical markers, just pad the close.
		content = strings.ReplaceAll(content, closeMarker, closeMarker+"\n\n")
		s.logger.Debug("unknown think-tags mode, emitting canonical markers")
	}

	return content
}
