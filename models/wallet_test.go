package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWalletCanSpend(t *testing.T) {
	w := &Wallet{BalanceSeconds: 600}

	assert.True(t, w.CanSpend(600))
	assert.True(t, w.CanSpend(1))
	assert.False(t, w.CanSpend(601))
	assert.False(t, w.CanSpend(0))
	assert.False(t, w.CanSpend(-100))

	empty := &Wallet{}
	assert.False(t, empty.CanSpend(1))
}
