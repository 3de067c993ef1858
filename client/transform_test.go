package client

import "testing"

func TestTransformReplacesKnownPlaceholders(t *testing.T) {
	state := map[string]string{
		"0†source": "[go.dev](https://go.dev)",
		"1†source": "[blog](https://go.dev/blog)",
	}
	in := "Go 1.22 is out 【0†source】 with details in 【1†source】."
	want := "Go 1.22 is out [go.dev](https://go.dev) with details in [blog](https://go.dev/blog)."

	if got := Transform(in, state); got != want {
		t.Errorf("Transform = %q, want %q", got, want)
	}
}

func TestTransformLeavesUnknownPlaceholdersVerbatim(t *testing.T) {
	state := map[string]string{"0†source": "https://go.dev"}
	in := "Known 【0†source】 and unknown 【9†source】."
	want := "Known https://go.dev and unknown 【9†source】."

	if got := Transform(in, state); got != want {
		t.Errorf("Transform = %q, want %q", got, want)
	}
}

func TestTransformIdempotent(t *testing.T) {
	state := map[string]string{"0†source": "https://go.dev"}
	in := "See 【0†source】 and 【missing】."

	once := Transform(in, state)
	twice := Transform(once, state)
	if once != twice {
		t.Errorf("not idempotent: %q then %q", once, twice)
	}
}

func TestTransformDoesNotExpandSubstitutedFragments(t *testing.T) {
	// A fragment that itself looks like a placeholder must survive one
	// pass unexpanded.
	state := map[string]string{
		"outer": "fragment with 【inner】 inside",
		"inner": "should not appear",
	}
	got := Transform("before 【outer】 after", state)
	want := "before fragment with 【inner】 inside after"
	if got != want {
		t.Errorf("Transform = %q, want %q", got, want)
	}
}

func TestTransformNoStateIsNoOp(t *testing.T) {
	in := "plain text with 【0†source】"
	if got := Transform(in, nil); got != in {
		t.Errorf("Transform = %q, want input unchanged", got)
	}
}
