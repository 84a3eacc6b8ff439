package match

import (
	"errors"
	"testing"
)

func TestMatchCaseInsensitiveSubstring(t *testing.T) {
	got, err := Match("Looking for a React developer", []string{"react", "vue"})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(got) != 1 || got[0] != "react" {
		t.Fatalf("Match = %v, want [react]", got)
	}

	got, err = Match("no match here", []string{"react"})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Match = %v, want empty", got)
	}
}

func TestMatchKeywordCaseDoesNotMatter(t *testing.T) {
	got, err := Match("we ship golang services", []string{"GOLANG"})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(got) != 1 || got[0] != "GOLANG" {
		t.Fatalf("matched keywords should keep their configured spelling, got %v", got)
	}
}

func TestMatchReturnsSortedUniqueSubset(t *testing.T) {
	content := "Hiring: vue or react, must know react hooks"
	got, err := Match(content, []string{"vue", "react", "react", "  ", "angular"})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(got) != 2 || got[0] != "react" || got[1] != "vue" {
		t.Fatalf("Match = %v, want [react vue]", got)
	}
}

func TestMatchMalformedContent(t *testing.T) {
	_, err := Match("broken \xff\xfe content", []string{"react"})
	if !errors.Is(err, ErrMalformedContent) {
		t.Fatalf("expected ErrMalformedContent, got %v", err)
	}
}

func TestMatchEmptyKeywordSet(t *testing.T) {
	got, err := Match("anything at all", nil)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Match = %v, want empty", got)
	}
}
