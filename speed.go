package vp8rd

import (
	"time"

	"github.com/deepteams/vp8rd/internal/rdopt"
)

// MaxSpeed is the fastest realtime speed.
const MaxSpeed = 16

// autoSpeedThresh is, per speed, the percent of the deadline the average
// encode time must fall below before the speed is lowered again.
var autoSpeedThresh = [MaxSpeed + 1]int{
	1000, 200, 150, 130, 150, 125, 120, 115, 115, 115, 115, 115, 115, 115, 115, 115, 105,
}

// SpeedController adapts the realtime speed to the measured encode time.
// The averages are exponentially smoothed over about eight frames.
type SpeedController struct {
	Speed int

	avgEncode time.Duration
	avgPick   time.Duration
}

// Observe records the wall time of one frame and of its mode decision.
func (c *SpeedController) Observe(encode, pick time.Duration) {
	c.avgEncode = (7*c.avgEncode + encode) / 8
	c.avgPick = (7*c.avgPick + pick) / 8
}

func (c *SpeedController) restart() {
	c.avgEncode, c.avgPick = 0, 0
}

// AutoSelectSpeed picks the speed for the next frame so that encoding
// keeps up with frameRate. cpuUsed (1-16) reserves part of the deadline:
// the budget is (16-cpuUsed)/16 of the frame interval. A frame over budget
// jumps the speed by 4; a comfortable margin lowers it by 1, never below 4.
func (c *SpeedController) AutoSelectSpeed(frameRate float64, cpuUsed int) int {
	budget := time.Duration(float64(time.Second) / frameRate)
	budget = budget * time.Duration(16-cpuUsed) / 16

	if c.avgPick >= budget || c.avgEncode-c.avgPick >= budget {
		c.Speed = minInt(c.Speed+4, MaxSpeed)
		c.restart()
		return c.Speed
	}
	if c.avgPick == 0 {
		c.Speed = 4
		return c.Speed
	}
	if budget*100 < c.avgEncode*95 {
		c.Speed = minInt(c.Speed+2, MaxSpeed)
		c.restart()
	}
	if budget*100 > c.avgEncode*time.Duration(autoSpeedThresh[c.Speed]) {
		c.Speed = maxInt(c.Speed-1, 4)
		c.restart()
	}
	return c.Speed
}

// speedFor resolves the speed features of the next frame.
func (e *Encoder) speedFor() rdopt.SpeedFeatures {
	cfg := &e.cfg
	speed := 0
	switch cfg.Mode {
	case GoodQuality:
		speed = minInt(maxInt(cfg.CPUUsed, 0), 5)
	case Realtime:
		if cfg.CPUUsed < 0 {
			speed = -cfg.CPUUsed
		} else {
			speed = e.autoSpeed.AutoSelectSpeed(cfg.FrameRate, cfg.CPUUsed)
		}
	}
	e.speed = speed
	sf := rdopt.NewSpeedFeatures(cfg.Mode, speed)
	if !cfg.OptimizeCoefficients {
		sf.Trellis = false
	}
	return sf
}
