package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEffectivePhase_TierGating(t *testing.T) {
	tests := []struct {
		name  string
		phase int
		tier  string
		want  int
	}{
		{"phase 1 free", 1, TierFree, 1},
		{"phase 2 pro", 2, TierPro, 2},
		{"phase 3 free degrades", 3, TierFree, 2},
		{"phase 3 pro degrades", 3, TierPro, 2},
		{"phase 3 max allowed", 3, TierMax, 3},
		{"phase 3 enterprise allowed", 3, TierEnterprise, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EffectivePhase(tt.phase, tt.tier))
		})
	}
}

func TestForPhase(t *testing.T) {
	assert.Equal(t, RouterL1, ForPhase(1, TierFree))
	assert.Equal(t, RouterL2, ForPhase(2, TierFree))
	assert.Equal(t, RouterL2, ForPhase(3, TierPro))
	assert.Equal(t, RouterL3, ForPhase(3, TierMax))
	// Unknown phase falls back to L1.
	assert.Equal(t, RouterL1, ForPhase(0, TierMax))
	assert.Equal(t, RouterL1, ForPhase(7, TierEnterprise))
}

func TestClassForPhase(t *testing.T) {
	assert.Equal(t, ClassL1, ClassForPhase(1, TierFree))
	assert.Equal(t, ClassL2, ClassForPhase(2, TierFree))
	assert.Equal(t, ClassL2, ClassForPhase(3, TierFree))
	assert.Equal(t, ClassL3, ClassForPhase(3, TierEnterprise))
}

func TestClassIsValid(t *testing.T) {
	assert.True(t, ClassL1.IsValid())
	assert.True(t, ClassL2.IsValid())
	assert.True(t, ClassL3.IsValid())
	assert.False(t, Class("L4").IsValid())
	assert.False(t, Class("").IsValid())
}
