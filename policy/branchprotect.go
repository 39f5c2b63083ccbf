// Package policy implements branch protection: glob-matched rules that
// constrain which ref updates are allowed, evaluated in a fixed order so
// the most severe applicable constraint always wins.
package policy

import (
	"fmt"
	"path"
	"strings"
)

// Rule is one branch protection rule, matched against ref names by glob
// pattern. Git-style "**" matches across slashes; a single "*" does not.
type Rule struct {
	Pattern                        string   `json:"pattern"`
	BypassActors                   []string `json:"bypassActors,omitempty"` // identities exempt from every constraint below
	Lock                           bool     `json:"lock,omitempty"`         // no pushes at all, except by bypass actors
	AllowDeletion                  bool     `json:"allowDeletion,omitempty"`
	AllowForcePush                 bool     `json:"allowForcePush,omitempty"`
	RequiredReviews                int      `json:"requiredReviews,omitempty"`
	RequireLinearHistory           bool     `json:"requireLinearHistory,omitempty"`
	RequireSignedCommits           bool     `json:"requireSignedCommits,omitempty"`
	RequiredStatusChecks           []string `json:"requiredStatusChecks,omitempty"`
	RequireUpToDate                bool     `json:"requireUpToDate,omitempty"` // branch must be up to date with its base before merge
	RequireConversationResolution  bool     `json:"requireConversationResolution,omitempty"`
	Message                        string   `json:"message,omitempty"` // overrides the default rejection message when set
}

// Specificity scores a rule's pattern so that, when multiple rules match a
// ref, the most specific one is applied. An exact match (no wildcards)
// scores highest; "**" segments are weighted lower than single "*" segments
// since they match more.
func (r Rule) Specificity() int {
	if !strings.ContainsAny(r.Pattern, "*") {
		return len(r.Pattern)*10 + 1_000_000
	}
	doubleStar := strings.Count(r.Pattern, "**")
	singleStar := strings.Count(r.Pattern, "*") - 2*doubleStar
	return len(r.Pattern)*10 - (doubleStar*100 + singleStar*10)
}

// Matches reports whether ref satisfies the rule's glob pattern.
func (r Rule) Matches(ref string) bool {
	return globMatch(r.Pattern, ref)
}

// globMatch implements git-style glob matching: "**" matches any sequence
// of path segments (including none), a bare "*" matches within one segment.
func globMatch(pattern, name string) bool {
	return globMatchSegments(strings.Split(pattern, "/"), strings.Split(name, "/"))
}

func globMatchSegments(patternSegs, nameSegs []string) bool {
	if len(patternSegs) == 0 {
		return len(nameSegs) == 0
	}
	head := patternSegs[0]
	if head == "**" {
		if len(patternSegs) == 1 {
			return true
		}
		for i := 0; i <= len(nameSegs); i++ {
			if globMatchSegments(patternSegs[1:], nameSegs[i:]) {
				return true
			}
		}
		return false
	}
	if len(nameSegs) == 0 {
		return false
	}
	ok, err := path.Match(head, nameSegs[0])
	if err != nil || !ok {
		return false
	}
	return globMatchSegments(patternSegs[1:], nameSegs[1:])
}

// ChangeKind classifies the ref update being evaluated.
type ChangeKind int

const (
	ChangeUpdate ChangeKind = iota
	ChangeCreate
	ChangeDelete
)

// Change describes a single proposed ref mutation for evaluation against
// the rule set.
type Change struct {
	RefName            string
	Actor              string
	Kind               ChangeKind
	IsForcePush        bool
	ReviewApprovals    int
	IsLinearHistory    bool
	HasSignedCommits   bool
	PassedStatusChecks []string
	IsUpToDate         bool
	ConversationsResolved bool
}

// Decision is the outcome of evaluating a Change against the matched Rule.
type Decision struct {
	Allowed bool
	Reason  string
	Rule    *Rule
}

// allowedNoRule is the Decision returned when no rule matches: "no rule
// matched" means "allowed", since branch protection is opt-in per pattern.
var allowedNoRule = Decision{Allowed: true, Reason: "no matching protection rule"}

// Evaluator holds the configured rule set for a repository.
type Evaluator struct {
	Rules []Rule
}

// NewEvaluator returns an Evaluator over the given rules.
func NewEvaluator(rules []Rule) *Evaluator {
	return &Evaluator{Rules: rules}
}

// MatchRule returns the most specific rule whose pattern matches ref, or
// nil if no rule applies.
func (e *Evaluator) MatchRule(ref string) *Rule {
	var best *Rule
	bestScore := -1
	for i := range e.Rules {
		r := &e.Rules[i]
		if !r.Matches(ref) {
			continue
		}
		if score := r.Specificity(); score > bestScore {
			best, bestScore = r, score
		}
	}
	return best
}

// Evaluate runs the ordered constraint chain against change and returns the
// first failing constraint's decision, or an allow decision if every
// constraint the matched rule imposes is satisfied.
//
// Evaluation order: bypass, lock, deletion, force-push, reviews, linear
// history, signed commits, status checks, up-to-date, conversations. Each
// stage short-circuits the ones after it.
func (e *Evaluator) Evaluate(change Change) Decision {
	rule := e.MatchRule(change.RefName)
	if rule == nil {
		return allowedNoRule
	}

	if actorBypasses(rule.BypassActors, change.Actor) {
		return Decision{Allowed: true, Reason: "actor is on the bypass list", Rule: rule}
	}

	if rule.Lock {
		return deny(rule, "branch is locked")
	}
	if change.Kind == ChangeDelete && !rule.AllowDeletion {
		return deny(rule, "branch deletion is not allowed")
	}
	if change.IsForcePush && !rule.AllowForcePush {
		return deny(rule, "force pushes are not allowed")
	}
	if rule.RequiredReviews > 0 && change.ReviewApprovals < rule.RequiredReviews {
		return deny(rule, fmt.Sprintf("requires %d approving review(s), has %d", rule.RequiredReviews, change.ReviewApprovals))
	}
	if rule.RequireLinearHistory && !change.IsLinearHistory {
		return deny(rule, "requires linear history")
	}
	if rule.RequireSignedCommits && !change.HasSignedCommits {
		return deny(rule, "requires signed commits")
	}
	if missing := missingChecks(rule.RequiredStatusChecks, change.PassedStatusChecks); len(missing) > 0 {
		return deny(rule, fmt.Sprintf("missing required status check(s): %s", strings.Join(missing, ", ")))
	}
	if rule.RequireUpToDate && !change.IsUpToDate {
		return deny(rule, "branch must be up to date with its base")
	}
	if rule.RequireConversationResolution && !change.ConversationsResolved {
		return deny(rule, "all review conversations must be resolved")
	}

	return Decision{Allowed: true, Reason: "all constraints satisfied", Rule: rule}
}

func deny(rule *Rule, reason string) Decision {
	if rule.Message != "" {
		reason = rule.Message
	}
	return Decision{Allowed: false, Reason: reason, Rule: rule}
}

func actorBypasses(bypassList []string, actor string) bool {
	for _, a := range bypassList {
		if a == actor {
			return true
		}
	}
	return false
}

func missingChecks(required, passed []string) []string {
	passedSet := make(map[string]bool, len(passed))
	for _, p := range passed {
		passedSet[p] = true
	}
	var missing []string
	for _, r := range required {
		if !passedSet[r] {
			missing = append(missing, r)
		}
	}
	return missing
}
