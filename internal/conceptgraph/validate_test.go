package conceptgraph

import "testing"

func issuesByCode(issues []Issue, code string) []Issue {
	var out []Issue
	for _, is := range issues {
		if is.Code == code {
			out = append(out, is)
		}
	}
	return out
}

func TestValidateCleanGraph(t *testing.T) {
	g := New([]string{"a", "b"}, edges([2]string{"b", "a"}))
	r := g.Validate(map[string]int{"a": 3, "b": 2}, 6)

	if !r.Valid() {
		t.Fatalf("expected valid graph, errors: %v", r.Errors)
	}
	if len(r.Warnings) != 0 {
		t.Errorf("expected no warnings, got %v", r.Warnings)
	}
}

func TestValidateCycleIsError(t *testing.T) {
	g := New([]string{"a", "b"}, edges([2]string{"a", "b"}, [2]string{"b", "a"}))
	r := g.Validate(map[string]int{"a": 1, "b": 1}, 0)

	if r.Valid() {
		t.Fatal("cycle should invalidate the graph")
	}
	cycles := issuesByCode(r.Errors, IssueCycle)
	if len(cycles) != 2 {
		t.Errorf("expected both cycle members flagged, got %v", cycles)
	}
}

func TestValidateDanglingEdge(t *testing.T) {
	g := New([]string{"a"}, edges([2]string{"a", "ghost"}))
	r := g.Validate(map[string]int{"a": 1}, 0)

	if r.Valid() {
		t.Fatal("dangling edge should invalidate the graph")
	}
	if got := issuesByCode(r.Errors, IssueDanglingEdge); len(got) != 1 {
		t.Errorf("expected one dangling edge error, got %v", r.Errors)
	}
}

func TestValidateNoLinkedItemsWarning(t *testing.T) {
	g := New([]string{"a", "b"}, edges([2]string{"b", "a"}))
	r := g.Validate(map[string]int{"a": 2}, 0)

	if !r.Valid() {
		t.Fatalf("warnings must not invalidate: %v", r.Errors)
	}
	warns := issuesByCode(r.Warnings, IssueNoItems)
	if len(warns) != 1 || warns[0].ConceptID != "b" {
		t.Errorf("expected no_linked_items warning for b, got %v", r.Warnings)
	}
}

func TestValidateOrphanWarning(t *testing.T) {
	g := New([]string{"a", "b", "island"}, edges([2]string{"b", "a"}))
	r := g.Validate(map[string]int{"a": 1, "b": 1, "island": 1}, 0)

	warns := issuesByCode(r.Warnings, IssueOrphan)
	if len(warns) != 1 || warns[0].ConceptID != "island" {
		t.Errorf("expected orphan warning for island, got %v", r.Warnings)
	}
}

func TestValidateChainDepthWarning(t *testing.T) {
	// d -> c -> b -> a: depth 4 with limit 3.
	g := New([]string{"a", "b", "c", "d"}, edges(
		[2]string{"d", "c"},
		[2]string{"c", "b"},
		[2]string{"b", "a"},
	))
	items := map[string]int{"a": 1, "b": 1, "c": 1, "d": 1}

	r := g.Validate(items, 3)
	warns := issuesByCode(r.Warnings, IssueChainDepth)
	if len(warns) != 1 || warns[0].ConceptID != "d" {
		t.Errorf("expected chain_depth warning for d only, got %v", warns)
	}

	// Zero disables the depth check.
	r = g.Validate(items, 0)
	if got := issuesByCode(r.Warnings, IssueChainDepth); len(got) != 0 {
		t.Errorf("depth check should be disabled, got %v", got)
	}
}
