package processing

import "testing"

func TestExtractTitleFromMarkdown(t *testing.T) {
	content := "\n# Getting Started\n\nSome body text follows."
	meta := ExtractMetadata(content, nil)
	if meta["title"] != "Getting Started" {
		t.Errorf("title = %v", meta["title"])
	}
}

func TestExtractTitleFirstLine(t *testing.T) {
	meta := ExtractMetadata("Plain first line\nsecond line", nil)
	if meta["title"] != "Plain first line" {
		t.Errorf("title = %v", meta["title"])
	}
}

func TestDetectLanguage(t *testing.T) {
	if got := detectLanguage("The quick brown fox jumps over the lazy dog"); got != "en" {
		t.Errorf("en text detected as %s", got)
	}
	if got := detectLanguage("这是一段完全使用中文撰写的文本内容"); got != "zh" {
		t.Errorf("zh text detected as %s", got)
	}
	if got := detectLanguage("   "); got != "unknown" {
		t.Errorf("blank text detected as %s", got)
	}
}

func TestExtractKeywords(t *testing.T) {
	content := "kubernetes cluster kubernetes deployment cluster kubernetes scaling deployment"
	keywords := extractKeywords(content, 3)
	if len(keywords) == 0 || keywords[0] != "kubernetes" {
		t.Errorf("keywords = %v", keywords)
	}
}

func TestExtractMetadataPreservesExisting(t *testing.T) {
	existing := map[string]any{"title": "Custom Title", "owner": "alice"}
	meta := ExtractMetadata("# Other Title\n\nbody", existing)
	if meta["title"] != "Custom Title" {
		t.Errorf("existing title should win, got %v", meta["title"])
	}
	if meta["owner"] != "alice" {
		t.Error("existing keys should survive")
	}
}
