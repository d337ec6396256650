package rules

// Stage is the freemium position of a user. It is derived, never stored.
type Stage string

const (
	StageFreeUnused  Stage = "free_unused"
	StageFreeUsed    Stage = "free_used"
	StageTrialActive Stage = "trial_active"
	StagePremium     Stage = "premium"
)

type stageTransition struct {
	From Stage
	To   Stage
}

var validStageTransitions = map[stageTransition]struct{}{
	{From: StageFreeUnused, To: StageFreeUsed}:    {},
	{From: StageFreeUnused, To: StageTrialActive}: {},
	{From: StageFreeUsed, To: StageTrialActive}:   {},
	{From: StageFreeUnused, To: StagePremium}:     {},
	{From: StageFreeUsed, To: StagePremium}:       {},
	{From: StageTrialActive, To: StagePremium}:    {},
}

// CanTransition reports whether a user may move between two stages.
// Daily quota cycles inside trial_active are not transitions. Premium is terminal.
func CanTransition(from, to Stage) bool {
	_, ok := validStageTransitions[stageTransition{From: from, To: to}]
	return ok
}

func DeriveStage(isPremium, trialActive, hasUsedFreeScan bool) Stage {
	switch {
	case isPremium:
		return StagePremium
	case trialActive:
		return StageTrialActive
	case hasUsedFreeScan:
		return StageFreeUsed
	default:
		return StageFreeUnused
	}
}
