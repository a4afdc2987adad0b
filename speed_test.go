package vp8rd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAutoSelectSpeed(t *testing.T) {
	// At 30 fps with cpuUsed 8 the budget is half of 33.3ms.
	const fps, cpu = 30, 8

	var c SpeedController
	assert.Equal(t, 4, c.AutoSelectSpeed(fps, cpu), "no history starts at 4")

	c = SpeedController{Speed: 8, avgEncode: 40 * time.Millisecond, avgPick: 20 * time.Millisecond}
	assert.Equal(t, 12, c.AutoSelectSpeed(fps, cpu), "over budget")
	assert.Zero(t, c.avgEncode)

	c = SpeedController{Speed: 15, avgEncode: 40 * time.Millisecond, avgPick: 20 * time.Millisecond}
	assert.Equal(t, MaxSpeed, c.AutoSelectSpeed(fps, cpu))

	c = SpeedController{Speed: 8, avgEncode: 18 * time.Millisecond, avgPick: 10 * time.Millisecond}
	// Raised by two, then the cleared average eases it by one.
	assert.Equal(t, 9, c.AutoSelectSpeed(fps, cpu))

	c = SpeedController{Speed: 8, avgEncode: time.Millisecond, avgPick: time.Millisecond}
	assert.Equal(t, 7, c.AutoSelectSpeed(fps, cpu), "well under budget")

	c = SpeedController{Speed: 4, avgEncode: time.Millisecond, avgPick: time.Millisecond}
	assert.Equal(t, 4, c.AutoSelectSpeed(fps, cpu), "never below 4")
}

func TestSpeedControllerObserve(t *testing.T) {
	var c SpeedController
	c.Observe(80*time.Millisecond, 40*time.Millisecond)
	assert.Equal(t, 10*time.Millisecond, c.avgEncode)
	assert.Equal(t, 5*time.Millisecond, c.avgPick)
	c.Observe(80*time.Millisecond, 40*time.Millisecond)
	assert.Equal(t, (70*time.Millisecond+80*time.Millisecond)/8, c.avgEncode)
}

func TestSpeedFor(t *testing.T) {
	for _, tt := range []struct {
		mode  Mode
		cpu   int
		speed int
	}{
		{GoodQuality, 0, 0},
		{GoodQuality, 3, 3},
		{GoodQuality, 9, 5},
		{GoodQuality, -2, 0},
		{BestQuality, 7, 0},
		{Realtime, -7, 7},
	} {
		e := &Encoder{cfg: DefaultConfig(64, 64)}
		e.cfg.Mode, e.cfg.CPUUsed = tt.mode, tt.cpu
		e.speedFor()
		assert.Equal(t, tt.speed, e.speed, "mode %v cpu %d", tt.mode, tt.cpu)
	}

	e := &Encoder{cfg: DefaultConfig(64, 64)}
	e.cfg.Mode = BestQuality
	assert.True(t, e.speedFor().Trellis)
	e.cfg.OptimizeCoefficients = false
	assert.False(t, e.speedFor().Trellis)
}
