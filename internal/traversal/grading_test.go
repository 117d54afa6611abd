package traversal

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/harrison/gradewalker/internal/config"
	"github.com/harrison/gradewalker/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyGradeText(t *testing.T) {
	kw := testOptions().Grading.Keywords

	tests := []struct {
		text string
		want GradeStatus
	}{
		{"", GradeUnknown},
		{"   ", GradeUnknown},
		{"All test cases PASSED", GradePassed},
		{"Accepted", GradePassed},
		{"Correct!", GradePassed},
		{"Incorrect", GradeFailed},
		{"INCORRECT answer", GradeFailed},
		{"Wrong   Answer on test 3", GradeFailed},
		{"2 passed, 1 failed", GradeFailed},
		{"0/5 test cases passed", GradeFailed},
		{"3 / 5 tests passed", GradeFailed},
		{"Passed 4 out of 4 tests", GradePassed},
		{"5/5 test cases passed", GradePassed},
		{"Processing your submission", GradeProcessing},
		{"Running...", GradeProcessing},
		{"Something odd happened", GradeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyGradeText(tt.text, kw))
		})
	}
}

func TestClassifyGradeText_DefaultKeywords(t *testing.T) {
	kw := OptionsFromConfig(config.DefaultConfig()).Grading.Keywords

	tests := []struct {
		text string
		want GradeStatus
	}{
		{"All test cases passed", GradePassed},
		{"Accepted", GradePassed},
		{"Correct answer", GradePassed},
		{"0/5 test cases passed", GradeFailed},
		{"5/5 test cases passed", GradePassed},
		{"Some tests passed", GradeUnknown},
		{"Time limit exceeded on test 2", GradeFailed},
		{"Memory Limit Exceeded", GradeFailed},
		{"Not accepted", GradeFailed},
		{"Judging...", GradeProcessing},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyGradeText(tt.text, kw))
		})
	}
}

func TestGradeStatus_Outcome(t *testing.T) {
	assert.Equal(t, models.OutcomePassed, GradePassed.Outcome())
	assert.Equal(t, models.OutcomeFailed, GradeFailed.Outcome())
	assert.Equal(t, models.OutcomeSkipped, GradeProcessing.Outcome())
	assert.Equal(t, models.OutcomeSkipped, GradeUnknown.Outcome())
	assert.Equal(t, "failed", GradeFailed.String())
}

func TestGrade(t *testing.T) {
	tests := []struct {
		name  string
		setup func(q *fakeQuestion)
		want  models.Outcome
	}{
		{"passed", func(q *fakeQuestion) {}, models.OutcomePassed},
		{"failed", func(q *fakeQuestion) { q.result = "Incorrect output" }, models.OutcomeFailed},
		{"processing then passed", func(q *fakeQuestion) { q.processing = 3 }, models.OutcomePassed},
		{"still processing at the end", func(q *fakeQuestion) { q.processing = 100 }, models.OutcomeSkipped},
		{"unrecognised text", func(q *fakeQuestion) { q.result = "Hmm" }, models.OutcomeSkipped},
		{"verdict only in page body", func(q *fakeQuestion) { q.bodyOnly = true; q.result = "Accepted" }, models.OutcomePassed},
		{"nothing anywhere", func(q *fakeQuestion) { q.bodyOnly = true; q.result = "" }, models.OutcomeSkipped},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			site := newFakeSite(1)
			tt.setup(site.questions[1])
			h := newHarness(t, site, testOptions())

			got, err := h.engine.Grade(context.Background(), 1)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGrade_MissingRunControl(t *testing.T) {
	site := newFakeSite(1)
	site.questions[1].missingRun = 1
	h := newHarness(t, site, testOptions())

	got, err := h.engine.Grade(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrControlNotFound))
	assert.Equal(t, models.OutcomeSkipped, got)
}

func TestQuestionError(t *testing.T) {
	err := &QuestionError{Index: 4, Phase: PhaseGrade, Err: ErrControlNotFound}
	assert.Equal(t, "question 4: grade failed: control not found", err.Error())
	assert.ErrorIs(t, err, ErrControlNotFound)
	wrapped := fmt.Errorf("attempt 2: %w", err)
	qe, ok := AsQuestionError(wrapped)
	require.True(t, ok)
	assert.Equal(t, PhaseGrade, qe.Phase)
	_, ok = AsQuestionError(errors.New("plain"))
	assert.False(t, ok)
	assert.False(t, IsInterrupted(nil))
	assert.True(t, IsInterrupted(context.Canceled))
}
