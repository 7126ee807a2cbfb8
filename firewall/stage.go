package firewall

// Stage is the progress of a single authorize run. Runs move strictly
// forward through the stages; any failure ends the run in StageFailed.
type Stage int

const (
	StageInit Stage = iota
	StageServiceOpen
	StageRulesListed
	StageOldRuleChecked
	StageNewRuleBuilt
	StageSubmitted
	StageDone
	StageFailed
)

var stageNames = [...]string{
	StageInit:           "init",
	StageServiceOpen:    "service_open",
	StageRulesListed:    "rules_listed",
	StageOldRuleChecked: "old_rule_checked",
	StageNewRuleBuilt:   "new_rule_built",
	StageSubmitted:      "submitted",
	StageDone:           "done",
	StageFailed:         "failed",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "unknown"
	}
	return stageNames[s]
}
