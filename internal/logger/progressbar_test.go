package logger

import (
	"sync"
	"testing"

	"github.com/harrison/gradewalker/internal/models"
)

// TestProgressBarRender verifies correct ASCII bar rendering
func TestProgressBarRender(t *testing.T) {
	tests := []struct {
		name     string
		current  int
		total    int
		width    int
		expected string
	}{
		{"empty progress", 0, 10, 10, "[          ] 0/10 (0%)"},
		{"half progress", 5, 10, 10, "[=====     ] 5/10 (50%)"},
		{"full progress", 10, 10, 10, "[==========] 10/10 (100%)"},
		{"overshoot clamps", 12, 10, 10, "[==========] 12/10 (100%)"},
		{"unknown total", 3, 0, 4, "[    ] 3/0 (0%)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pb := NewProgressBar(tt.total, tt.width, false)
			pb.Update(tt.current)
			if got := pb.Render(); got != tt.expected {
				t.Errorf("Render() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestProgressBarRecordTallies(t *testing.T) {
	pb := NewProgressBar(4, 4, false)
	pb.SetPrefix("R1 ")
	pb.Record(models.OutcomePassed)
	pb.Record(models.OutcomeSkipped)

	want := "R1 [==  ] 2/4 (50%) P:1 F:0 S:1"
	if got := pb.Render(); got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}
	if pb.Percentage() != 50 {
		t.Errorf("Percentage() = %d, want 50", pb.Percentage())
	}
}

func TestProgressBarConcurrentRecord(t *testing.T) {
	pb := NewProgressBar(100, 10, false)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pb.Record(models.OutcomeFailed)
		}()
	}
	wg.Wait()

	if pb.Current() != 100 {
		t.Errorf("Current() = %d, want 100", pb.Current())
	}
}
