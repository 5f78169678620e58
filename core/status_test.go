package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCallStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to CallStatus
		ok       bool
	}{
		{StatusIdle, StatusProcessing, true},
		{StatusIdle, StatusStreaming, false},
		{StatusIdle, StatusFinished, false},
		{StatusProcessing, StatusStreaming, true},
		{StatusProcessing, StatusCallingTools, true},
		{StatusProcessing, StatusFinished, true},
		{StatusStreaming, StatusCallingTools, true},
		{StatusStreaming, StatusProcessing, true},
		{StatusStreaming, StatusFinished, true},
		{StatusCallingTools, StatusProcessing, true},
		{StatusCallingTools, StatusStreaming, false},
		{StatusCallingTools, StatusFinished, true},
		{StatusFinished, StatusProcessing, false},
		{StatusFinished, StatusFinished, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, tt.from.CanTransition(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestCallStatusTerminal(t *testing.T) {
	assert.True(t, StatusFinished.Terminal())
	for _, s := range []CallStatus{StatusIdle, StatusProcessing, StatusStreaming, StatusCallingTools} {
		assert.False(t, s.Terminal(), "%s must not be terminal", s)
	}
}

func TestCallStatusString(t *testing.T) {
	assert.Equal(t, "idle", StatusIdle.String())
	assert.Equal(t, "processing", StatusProcessing.String())
	assert.Equal(t, "streaming", StatusStreaming.String())
	assert.Equal(t, "calling_tools", StatusCallingTools.String())
	assert.Equal(t, "finished", StatusFinished.String())
}
