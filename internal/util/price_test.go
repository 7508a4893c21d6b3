package util

import (
	"math"
	"testing"
)

func TestRoundToTick(t *testing.T) {
	tests := []struct {
		name     string
		x        float64
		tick     float64
		expected float64
	}{
		{
			name:     "basic rounding down",
			x:        101.2,
			tick:     2.5,
			expected: 100,
		},
		{
			name:     "tie rounds to even multiple below",
			x:        1.25,
			tick:     0.5,
			expected: 1.0,
		},
		{
			name:     "tie rounds to even multiple above",
			x:        1.75,
			tick:     0.5,
			expected: 2.0,
		},
		{
			name:     "tie on strike grid",
			x:        2137.5,
			tick:     25,
			expected: 2150,
		},
		{
			name:     "exact multiple",
			x:        1.25,
			tick:     0.05,
			expected: 1.25,
		},
		{
			name:     "zero tick is identity",
			x:        3.14159,
			tick:     0,
			expected: 3.14159,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := RoundToTick(tt.x, tt.tick)
			if math.Abs(result-tt.expected) > 1e-10 {
				t.Errorf("RoundToTick(%v, %v) = %v, expected %v", tt.x, tt.tick, result, tt.expected)
			}
		})
	}
}

func TestStrikeInterval(t *testing.T) {
	tests := []struct {
		spot     float64
		expected float64
	}{
		{50, 2.5},
		{99.99, 2.5},
		{100, 5},
		{499, 5},
		{500, 10},
		{999, 10},
		{1000, 25},
		{2499, 25},
		{2500, 50},
		{4999, 50},
		{5000, 100},
		{12000, 100},
	}
	for _, tt := range tests {
		if got := StrikeInterval(tt.spot); got != tt.expected {
			t.Errorf("StrikeInterval(%v) = %v, expected %v", tt.spot, got, tt.expected)
		}
	}
}

func TestStrikeLadder(t *testing.T) {
	ladder := StrikeLadder(100)
	if len(ladder) != 7 {
		t.Fatalf("expected 7 strikes for spot 100, got %d: %v", len(ladder), ladder)
	}
	if ladder[0] != 90 || ladder[len(ladder)-1] != 120 {
		t.Errorf("unexpected ladder bounds: %v", ladder)
	}
	for i := 1; i < len(ladder); i++ {
		if ladder[i]-ladder[i-1] != 5 {
			t.Errorf("ladder step %d is %v, expected 5", i, ladder[i]-ladder[i-1])
		}
	}

	// 2375 * 0.9 = 2137.5 ties to 2150 (85.5 -> 86 is even)
	ladder = StrikeLadder(2375)
	if ladder[0] != 2150 {
		t.Errorf("expected half-even start 2150, got %v", ladder[0])
	}
	if !Contains(ladder, 2850) {
		t.Errorf("expected 2850 (120%% of spot) in ladder %v", ladder)
	}
	if Contains(ladder, 2151) {
		t.Error("2151 must not be a ladder member")
	}
}
