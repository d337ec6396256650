package enums

import "strings"

type PlanType string

const (
	PlanMonthly PlanType = "monthly"
	PlanYearly  PlanType = "yearly"
)

func ParsePlanType(raw string) (PlanType, bool) {
	switch PlanType(strings.ToLower(strings.TrimSpace(raw))) {
	case PlanMonthly:
		return PlanMonthly, true
	case PlanYearly, "annual":
		return PlanYearly, true
	default:
		return "", false
	}
}

type StoreProvider string

const (
	ProviderAppStore  StoreProvider = "app_store"
	ProviderPlayStore StoreProvider = "play_store"
)

func ParseStoreProvider(raw string) (StoreProvider, bool) {
	switch StoreProvider(strings.ToLower(strings.TrimSpace(raw))) {
	case ProviderAppStore, "ios":
		return ProviderAppStore, true
	case ProviderPlayStore, "android":
		return ProviderPlayStore, true
	default:
		return "", false
	}
}
