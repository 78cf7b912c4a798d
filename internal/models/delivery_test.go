package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeliveryTransitions(t *testing.T) {
	all := []DeliveryStatus{
		DeliveryStatusCreated, DeliveryStatusCanceled, DeliveryStatusConfirmed,
		DeliveryStatusFinished, DeliveryStatusAborted,
	}
	allowed := map[[2]DeliveryStatus]bool{
		{DeliveryStatusCreated, DeliveryStatusCanceled}:   true,
		{DeliveryStatusCreated, DeliveryStatusConfirmed}:  true,
		{DeliveryStatusConfirmed, DeliveryStatusFinished}: true,
		{DeliveryStatusConfirmed, DeliveryStatusAborted}:  true,
	}

	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[[2]DeliveryStatus{from, to}], from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}

	assert.True(t, DeliveryStatusCanceled.IsTerminal())
	assert.True(t, DeliveryStatusFinished.IsTerminal())
	assert.True(t, DeliveryStatusAborted.IsTerminal())
	assert.False(t, DeliveryStatusConfirmed.IsTerminal())
	assert.False(t, DeliveryStatus(9).Valid())
	assert.Equal(t, "CONFIRMED", DeliveryStatusConfirmed.String())
}
