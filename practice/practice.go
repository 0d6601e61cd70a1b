// Package practice holds the text based practice flows: group discussion
// topics and the per-domain knowledge check.
package practice

import (
	"fmt"
	"math"
)

// ValidationError blocks a submission that is missing a required input.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s is required", e.Field)
}

// Result is the feedback shown after a practice answer.
type Result struct {
	Question    string   `json:"question" yaml:"question"`
	Score       int      `json:"score" yaml:"score"`
	Strengths   []string `json:"strengths" yaml:"strengths"`
	Weaknesses  []string `json:"weaknesses" yaml:"weaknesses"`
	Suggestions []string `json:"suggestions" yaml:"suggestions"`
	// Mock is set when the backend could not be reached and canned feedback
	// was used instead.
	Mock bool `json:"mock,omitempty" yaml:"mock,omitempty"`
}

func meanOf(vs ...int) int {
	if len(vs) == 0 {
		return 0
	}
	sum := 0
	for _, v := range vs {
		sum += v
	}
	return int(math.Round(float64(sum) / float64(len(vs))))
}
