package generation

import (
	"strings"
	"testing"
)

func TestBuildPromptWithStyle(t *testing.T) {
	got := BuildPrompt("A modern courtyard house", "Kerala Traditional")
	if !strings.HasPrefix(got, "A modern courtyard house, Kerala Traditional architectural style, ") {
		t.Fatalf("unexpected prompt: %q", got)
	}
	if !strings.Contains(got, "photorealistic") {
		t.Fatalf("quality suffix missing: %q", got)
	}
}

func TestBuildPromptWithoutStyle(t *testing.T) {
	got := BuildPrompt("A hillside bungalow", "")
	if strings.Contains(got, "architectural style") {
		t.Fatalf("style fragment should be absent: %q", got)
	}
	if !strings.HasPrefix(got, "A hillside bungalow, ") {
		t.Fatalf("unexpected prompt: %q", got)
	}
}
