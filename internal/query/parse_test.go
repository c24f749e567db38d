package query

import (
	"reflect"
	"regexp"
	"testing"
)

func TestParse_MentionsAndPrompt(t *testing.T) {
	got := Parse("@svelte @daytona how do stores work?")
	want := Parsed{Repos: []string{"daytona", "svelte"}, Prompt: "how do stores work?"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Parse=%+v, want %+v", got, want)
	}
}

func TestParse_CaseFoldAndDedupe(t *testing.T) {
	got := Parse("@Svelte @SVELTE @daytona x")
	if !reflect.DeepEqual(got.Repos, []string{"daytona", "svelte"}) {
		t.Fatalf("Repos=%v", got.Repos)
	}
	if got.Prompt != "x" {
		t.Fatalf("Prompt=%q, want %q", got.Prompt, "x")
	}
}

func TestParse_OnlyMentions(t *testing.T) {
	got := Parse("@a @b @A")
	if !reflect.DeepEqual(got.Repos, []string{"a", "b"}) {
		t.Fatalf("Repos=%v", got.Repos)
	}
	if got.Prompt != "" {
		t.Fatalf("Prompt=%q, want empty", got.Prompt)
	}
}

func TestParse_MidSentenceMentions(t *testing.T) {
	got := Parse("how does @svelte use stores inside @daytona sandboxes?")
	if !reflect.DeepEqual(got.Repos, []string{"daytona", "svelte"}) {
		t.Fatalf("Repos=%v", got.Repos)
	}
	if got.Prompt != "how does use stores inside sandboxes?" {
		t.Fatalf("Prompt=%q", got.Prompt)
	}
}

func TestParse_VersionSuffixIgnored(t *testing.T) {
	got := Parse("@svelte@v5.1 how?")
	if !reflect.DeepEqual(got.Repos, []string{"svelte"}) {
		t.Fatalf("Repos=%v", got.Repos)
	}
	if got.Prompt != "how?" {
		t.Fatalf("Prompt=%q", got.Prompt)
	}
}

func TestParse_PromptNeverContainsMention(t *testing.T) {
	leftover := regexp.MustCompile(`@[a-zA-Z0-9_-]+`)
	inputs := []string{
		"@a@b c",
		"ask @x about @y and @x again",
		"@only",
		"no mentions here",
	}
	for _, input := range inputs {
		got := Parse(input)
		if leftover.MatchString(got.Prompt) {
			t.Fatalf("Parse(%q).Prompt=%q still contains a mention", input, got.Prompt)
		}
	}
}

func TestParse_RenderRoundTrip(t *testing.T) {
	// Rendering a parsed question as "@r1 @r2 prompt" and re-parsing
	// must be the identity on canonical values.
	parsed := Parsed{Repos: []string{"daytona", "svelte"}, Prompt: "how do stores work?"}
	rendered := ""
	for _, r := range parsed.Repos {
		rendered += "@" + r + " "
	}
	rendered += parsed.Prompt

	again := Parse(rendered)
	if !reflect.DeepEqual(again, parsed) {
		t.Fatalf("round trip: %+v != %+v", again, parsed)
	}
}

func TestWorkspaceKey_PermutationInvariant(t *testing.T) {
	perms := [][]string{
		{"svelte", "daytona"},
		{"daytona", "svelte"},
		{"Daytona", "SVELTE", "svelte"},
	}
	for _, p := range perms {
		key, err := WorkspaceKey(p)
		if err != nil {
			t.Fatalf("WorkspaceKey(%v): %v", p, err)
		}
		if key != "daytona+svelte" {
			t.Fatalf("WorkspaceKey(%v)=%q, want %q", p, key, "daytona+svelte")
		}
	}
}

func TestWorkspaceKey_EmptySet(t *testing.T) {
	if _, err := WorkspaceKey(nil); err == nil {
		t.Fatal("expected error for empty set")
	}
	if _, err := WorkspaceKey([]string{"  ", ""}); err == nil {
		t.Fatal("expected error for blank names")
	}
}

func TestSplitKey(t *testing.T) {
	got := SplitKey("daytona+svelte")
	if !reflect.DeepEqual(got, []string{"daytona", "svelte"}) {
		t.Fatalf("SplitKey=%v", got)
	}
	if SplitKey("") != nil {
		t.Fatal("SplitKey of empty key should be nil")
	}
}

func TestMerge(t *testing.T) {
	got := Merge([]string{"B", "a"}, []string{"a", "c"})
	if !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("Merge=%v", got)
	}
}
