package ingredients

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSplitExtras(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", []string{}},
		{"   ", []string{}},
		{"egg, tofu", []string{"egg", "tofu"}},
		{"青蔥，豆腐 雞蛋", []string{"青蔥", "豆腐", "雞蛋"}},
		{" a,,b\t c\n", []string{"a", "b", "c"}},
	}
	for _, tt := range tests {
		got := SplitExtras(tt.in)
		if got == nil {
			got = []string{}
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("SplitExtras(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}

func TestMergeDeduplicates(t *testing.T) {
	got := Merge([]string{"egg", "milk"}, "egg, tofu")
	want := []string{"egg", "milk", "tofu"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Merge mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeEmpty(t *testing.T) {
	if got := Merge(nil, " ， "); len(got) != 0 {
		t.Errorf("Merge = %v, want empty", got)
	}
}

func TestChecklist(t *testing.T) {
	c := New([]string{"egg", "milk", "egg", " ", "scallion"})
	if c.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", c.Len())
	}
	if diff := cmp.Diff([]string{"egg", "milk", "scallion"}, c.Selected()); diff != "" {
		t.Errorf("new checklist should select all (-want +got):\n%s", diff)
	}

	if !c.Set("milk", false) {
		t.Fatal("Set(milk) reported unknown item")
	}
	if c.Set("caviar", true) {
		t.Error("Set(caviar) should report unknown item")
	}
	if diff := cmp.Diff([]string{"egg", "scallion"}, c.Selected()); diff != "" {
		t.Errorf("Selected mismatch (-want +got):\n%s", diff)
	}

	c.Only([]string{"milk"})
	want := []Item{{"egg", false}, {"milk", true}, {"scallion", false}}
	if diff := cmp.Diff(want, c.Items()); diff != "" {
		t.Errorf("Items mismatch (-want +got):\n%s", diff)
	}
}

func TestNilChecklist(t *testing.T) {
	var c *Checklist
	if c.Selected() != nil || c.Items() != nil || c.Len() != 0 || c.Set("x", true) {
		t.Error("nil checklist must behave as empty")
	}
}
