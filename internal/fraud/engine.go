/**
 * @description
 * Rule-based fraud scoring for candidate transfers. The engine evaluates an
 * ordered list of independent rules against the pending transaction and the
 * sender's history; each rule contributes a candidate score and a
 * human-readable reason. The final score is the maximum of the contributing
 * scores, while the returned explanation concatenates every contributing
 * reason.
 *
 * The engine is a pure function of (transaction, history, now): it performs
 * no storage access and no mutation, so rules can be added or replaced
 * without touching the transfer coordinator.
 */

package fraud

import (
	"strings"
	"time"

	"github.com/corebank/ledger-service/internal/domain"
)

// FlagThreshold is the score at or above which a transaction is routed to
// manual review rather than blocked.
const FlagThreshold = 0.7

// NoSuspicionReason is returned when no rule contributes a score.
const NoSuspicionReason = "No suspicious patterns detected"

// Rule is one independent fraud heuristic. Evaluate reports whether the rule
// fires and, if so, the candidate score and its explanation.
type Rule interface {
	Name() string
	Evaluate(tx domain.Transaction, history []domain.Transaction, now time.Time) (score float64, reason string, hit bool)
}

// Verdict is the aggregated scoring outcome.
type Verdict struct {
	Flagged bool
	Score   float64
	Reason  string
}

// Engine evaluates an ordered rule list.
type Engine struct {
	rules []Rule
}

// NewEngine builds an engine over the given rules, evaluated in order.
func NewEngine(rules ...Rule) *Engine {
	return &Engine{rules: rules}
}

// NewDefaultEngine returns the production rule set.
func NewDefaultEngine() *Engine {
	return NewEngine(
		LargeAmountRule{},
		VelocityRule{},
		DeviationRule{},
		OffHoursRule{},
	)
}

// Score runs every rule. All rules are evaluated even after one fires so the
// explanation covers each contributing pattern.
func (e *Engine) Score(tx domain.Transaction, history []domain.Transaction, now time.Time) Verdict {
	var (
		maxScore float64
		reasons  []string
	)
	for _, rule := range e.rules {
		score, reason, hit := rule.Evaluate(tx, history, now)
		if !hit {
			continue
		}
		if score > maxScore {
			maxScore = score
		}
		reasons = append(reasons, reason)
	}
	if len(reasons) == 0 {
		return Verdict{Flagged: false, Score: 0.0, Reason: NoSuspicionReason}
	}
	return Verdict{
		Flagged: maxScore >= FlagThreshold,
		Score:   maxScore,
		Reason:  strings.Join(reasons, "; "),
	}
}
