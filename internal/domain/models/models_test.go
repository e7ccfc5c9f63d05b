package models

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestValidateQuery(t *testing.T) {
	tests := []struct {
		name    string
		raw     *string
		want    string
		wantMsg string
	}{
		{name: "missing", raw: nil, wantMsg: "Query must be a non-empty string"},
		{name: "empty", raw: strPtr(""), wantMsg: "Query must be a non-empty string"},
		{name: "whitespace", raw: strPtr("   "), wantMsg: "Query cannot be empty or whitespace only"},
		{name: "trimmed", raw: strPtr("  What is Amazon Bedrock?  "), want: "What is Amazon Bedrock?"},
		{name: "exactly max", raw: strPtr(strings.Repeat("a", MaxQueryLength)), want: strings.Repeat("a", MaxQueryLength)},
		{name: "too long", raw: strPtr(strings.Repeat("a", MaxQueryLength+1)), wantMsg: "Query is too long (1001 characters). Maximum is 1000 characters"},
		{name: "multibyte counted as code points", raw: strPtr(strings.Repeat("问", MaxQueryLength)), want: strings.Repeat("问", MaxQueryLength)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateQuery(tt.raw, 0)
			if tt.wantMsg != "" {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrValidation))
				var pe *PipelineError
				require.True(t, errors.As(err, &pe))
				assert.Equal(t, tt.wantMsg, pe.Message)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQueryKey_DeterministicAfterTrim(t *testing.T) {
	assert.Equal(t, QueryKey("What is Amazon Bedrock?"), QueryKey("  What is Amazon Bedrock?\n"))
	assert.NotEqual(t, QueryKey("What is Amazon Bedrock?"), QueryKey("What is Amazon Bedrock"))
	assert.Len(t, QueryKey("x"), 64)
}

func TestCacheEntry_ExpiryBoundary(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	entry := NewCacheEntry("q", &PipelineResult{Answer: "a"}, now, 10*time.Second)

	assert.False(t, entry.Expired(now.Add(9*time.Second)))
	assert.True(t, entry.Expired(now.Add(10*time.Second)), "expiresAt == now counts as expired")
	assert.True(t, entry.Expired(now.Add(time.Hour)))
}

func TestCacheEntry_ToResultMarksCached(t *testing.T) {
	score := 0.9
	entry := NewCacheEntry("q", &PipelineResult{
		Answer:          "a",
		Sources:         []Source{{Title: "guide.pdf", URI: "guide.pdf", Score: &score}},
		ExecutionTimeMs: 1200,
	}, time.Now(), time.Hour)

	res := entry.ToResult(3)
	assert.True(t, res.Cached)
	assert.Equal(t, int64(3), res.ExecutionTimeMs)
	assert.Equal(t, "q", res.Query)
	require.Len(t, res.Sources, 1)
	assert.Equal(t, "guide.pdf", res.Sources[0].Title)
}

func TestRunEvent_WithDoesNotMutateOriginal(t *testing.T) {
	base := NewRunEvent("q", "req-1", time.Now())
	passages := []RetrievedPassage{{Text: "t", Score: 1}}

	next := base.WithRetrieval(passages, "ctx").WithState(StateGenerate)
	passages[0].Text = "changed"

	assert.Empty(t, base.Passages)
	assert.Equal(t, StateCheckInput, base.State)
	assert.Equal(t, "t", next.Passages[0].Text)
	assert.Equal(t, StateGenerate, next.State)
}

func TestRunEvent_Blocked(t *testing.T) {
	ev := NewRunEvent("q", "r", time.Now()).WithInputVerdict(ModerationVerdict{Passed: true, Action: ActionAllowed})
	_, blocked := ev.Blocked()
	assert.False(t, blocked)

	ev = ev.WithOutputVerdict(ModerationVerdict{Passed: false, Action: ActionBlocked, Reason: "PII detected"})
	v, blocked := ev.Blocked()
	assert.True(t, blocked)
	assert.Equal(t, "PII detected", v.Reason)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, ErrorKind(""), KindOf(nil))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	wrapped := fmt.Errorf("outer: %w", NewStageError(StateRetrieve, errors.New("conn refused")))
	assert.Equal(t, KindStageBackend, KindOf(wrapped))
	assert.True(t, errors.Is(wrapped, ErrStageBackend))
	assert.False(t, errors.Is(wrapped, ErrTimeout))
}

func TestRunErrorFrom_KeepsBlockedReason(t *testing.T) {
	re := RunErrorFrom(NewBlockedError(StateCheckOutput, "Word policy violation"))
	assert.Equal(t, KindModerationBlocked, re.Kind)
	assert.Equal(t, StateCheckOutput, re.Stage)
	assert.Equal(t, "Word policy violation", re.Cause)
	assert.True(t, errors.Is(re.Err(), ErrModerationBlocked))
}
