package dialogue

import (
	"testing"
)

func TestMissingSlots(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		utterance string
		intent    Intent
		want      []SlotName
	}{
		{
			name:      "both slots satisfied",
			utterance: "generate an image for retail",
			intent:    IntentGeneration,
			want:      nil,
		},
		{
			name:      "domain missing",
			utterance: "create something",
			intent:    IntentGeneration,
			want:      []SlotName{SlotDomainContext},
		},
		{
			name:      "subject missing",
			utterance: "for the healthcare sector",
			intent:    IntentGeneration,
			want:      []SlotName{SlotSubject},
		},
		{
			name:      "hyphenated subject noun",
			utterance: "a one-pager for retail",
			intent:    IntentGeneration,
			want:      nil,
		},
		{
			name:      "nothing satisfied",
			utterance: "hmm",
			intent:    IntentGeneration,
			want:      []SlotName{SlotSubject, SlotDomainContext},
		},
		{
			name:      "non-generation intent tracks no slots",
			utterance: "hmm",
			intent:    IntentGreeting,
			want:      nil,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := MissingSlots(tt.utterance, tt.intent)
			assertSlots(t, got, tt.want)
		})
	}
}

func TestMissingSlotsSubjectOnly(t *testing.T) {
	t.Parallel()

	got := MissingSlots("something about the healthcare market", IntentGeneration)
	assertSlots(t, got, []SlotName{SlotSubject})
}

// Appending text can only shrink the missing set: the satisfying vocabulary
// is additive.
func TestMissingSlotsMonotoneUnderConcatenation(t *testing.T) {
	t.Parallel()

	base := "create something"
	suffixes := []string{"", " please", " for healthcare", " for a retail client", " with bold style"}

	prev := len(MissingSlots(base, IntentGeneration))
	acc := base
	for _, suffix := range suffixes {
		acc += suffix
		cur := len(MissingSlots(acc, IntentGeneration))
		if cur > prev {
			t.Fatalf("missing slots grew from %d to %d after appending %q", prev, cur, suffix)
		}
		prev = cur
	}
}

func TestMissingSlotsFixedOrder(t *testing.T) {
	t.Parallel()

	got := MissingSlots("xyzzy", IntentGeneration)
	if len(got) != 2 || got[0] != SlotSubject || got[1] != SlotDomainContext {
		t.Fatalf("expected [subject domain_context], got %v", got)
	}
}

func assertSlots(t *testing.T, got, want []SlotName) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("missing slots = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("missing slots = %v, want %v", got, want)
		}
	}
}
