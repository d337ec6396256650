package reminders

import "time"

const (
	GroupLifecycle  = "lifecycle"
	GroupConversion = "conversion"
)

const (
	TemplateTrialEnding     = "trial_ending"
	TemplateFreeScanUnused  = "free_scan_unused"
	TemplateUpgradeNudge    = "upgrade_nudge"
	TemplateResultsExpiring = "results_expiring"
	TemplateResultsLocked   = "results_locked"
)

// Template is one push notification the scheduler can arm.
type Template struct {
	Key   string
	Group string
	Title string
	Body  string
	// Delay is measured from the sync for lifecycle templates and back from
	// results_unlocked_until for conversion templates.
	Delay time.Duration
}

var Templates = []Template{
	{
		Key:   TemplateTrialEnding,
		Group: GroupLifecycle,
		Title: "Your trial ends tomorrow",
		Body:  "Keep your daily glow and style analyses by choosing a plan before your trial runs out.",
		Delay: time.Hour,
	},
	{
		Key:   TemplateFreeScanUnused,
		Group: GroupLifecycle,
		Title: "Your free glow scan is waiting",
		Body:  "Snap a selfie and get your personalised skin analysis in seconds.",
		Delay: 24 * time.Hour,
	},
	{
		Key:   TemplateUpgradeNudge,
		Group: GroupLifecycle,
		Title: "Ready for your next scan?",
		Body:  "Start your free trial to track your glow every day.",
		Delay: 6 * time.Hour,
	},
	{
		Key:   TemplateResultsExpiring,
		Group: GroupConversion,
		Title: "Your results are about to lock",
		Body:  "Your full analysis stays unlocked for 12 more hours. Upgrade to keep it forever.",
		Delay: 12 * time.Hour,
	},
	{
		Key:   TemplateResultsLocked,
		Group: GroupConversion,
		Title: "Your results are locked",
		Body:  "Upgrade to unlock your full glow report and every future scan.",
		Delay: 0,
	},
}

func templateByKey(key string) (Template, bool) {
	for _, t := range Templates {
		if t.Key == key {
			return t, true
		}
	}
	return Template{}, false
}

func templateKeys(group string) []string {
	keys := make([]string, 0, len(Templates))
	for _, t := range Templates {
		if group == "" || t.Group == group {
			keys = append(keys, t.Key)
		}
	}
	return keys
}
