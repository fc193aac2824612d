// Package model provides model-class selection for LLM activities.
// Instead of hardcoding gateway model names, activities specify a class
// (L1/L2/L3) or an escalation phase plus subscription tier, and the package
// resolves the IAMA router model to request.
package model

// Class represents an LLM model class routed by the IAMA gateway.
type Class string

const (
	// ClassL1 is the workhorse class for proposals and phase-1 patches.
	ClassL1 Class = "L1"

	// ClassL2 is the spec-quality class for NL conversion, test generation,
	// and phase-2 patches.
	ClassL2 Class = "L2"

	// ClassL3 is the escalation class for phase-3 patches. Gated by tier.
	ClassL3 Class = "L3"
)

// Gateway model names, one router alias per class.
const (
	RouterL1 = "iama-router-l1"
	RouterL2 = "iama-router-l2"
	RouterL3 = "iama-router-l3"
)

// Subscription tiers. L3 access requires TierMax or TierEnterprise.
const (
	TierFree       = "FREE"
	TierPro        = "PRO"
	TierMax        = "MAX"
	TierEnterprise = "ENTERPRISE"
)

var phaseModels = map[int]string{
	1: RouterL1,
	2: RouterL2,
	3: RouterL3,
}

// IsValid checks if a class string is a known model class.
func (c Class) IsValid() bool {
	switch c {
	case ClassL1, ClassL2, ClassL3:
		return true
	}
	return false
}

// String returns the string representation of the class.
func (c Class) String() string {
	return string(c)
}

// TierHasL3 reports whether the tier is entitled to the L3 model class.
func TierHasL3(tier string) bool {
	return tier == TierMax || tier == TierEnterprise
}

// EffectivePhase applies tier gating to an escalation phase: phase 3
// without an L3-entitled tier degrades to phase 2. Other phases pass
// through unchanged.
func EffectivePhase(phase int, tier string) int {
	if phase == 3 && !TierHasL3(tier) {
		return 2
	}
	return phase
}

// ForPhase resolves the gateway model for an escalation phase after tier
// gating. Unknown phases fall back to the L1 router.
func ForPhase(phase int, tier string) string {
	if m, ok := phaseModels[EffectivePhase(phase, tier)]; ok {
		return m
	}
	return RouterL1
}

// ClassForPhase returns the model class recorded for a patch attempt at the
// given phase after tier gating.
func ClassForPhase(phase int, tier string) Class {
	switch EffectivePhase(phase, tier) {
	case 3:
		return ClassL3
	case 2:
		return ClassL2
	default:
		return ClassL1
	}
}
