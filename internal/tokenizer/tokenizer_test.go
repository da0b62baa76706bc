package tokenizer

import "testing"

func TestEstimator_Count(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"   \n\t", 0},
		{"abcd", 1},
		{"abcde", 2},
		{"Hello world, this is a test.", 7},
	}

	var e Estimator
	for _, tt := range tests {
		if got := e.Count(tt.text); got != tt.want {
			t.Errorf("Count(%q): expected %d, got %d", tt.text, tt.want, got)
		}
	}
}

func TestNew_UnknownModelStillCounts(t *testing.T) {
	c := New("no-such-model")
	if c == nil {
		t.Fatal("expected a counter, got nil")
	}

	n := c.Count("Hello world, this is a test.")
	if n <= 0 {
		t.Errorf("expected positive token count, got %d", n)
	}
	if c.Count("") != 0 {
		t.Errorf("expected 0 tokens for empty text, got %d", c.Count(""))
	}
}

func TestNew_EstimatorModel(t *testing.T) {
	if _, ok := New(EstimatorModel).(Estimator); !ok {
		t.Errorf("expected Estimator for %q", EstimatorModel)
	}
}
