package render

import (
	"encoding/json"
	"strings"
	"testing"
)

func sampleResume() Resume {
	return Resume{
		Title:      "Jane Doe",
		JobTitle:   "Backend Engineer",
		ThemeColor: "#3388ff",
	}
}

func sampleSections() []Section {
	return []Section{
		{
			Type:       SectionSummary,
			Title:      "Summary",
			Content:    json.RawMessage(`{"text":"Seasoned engineer with a focus on distributed systems."}`),
			OrderIndex: 0,
		},
		{
			Type:       SectionExperience,
			Title:      "Experience",
			Content:    json.RawMessage(`{"items":[{"company":"Acme","role":"Engineer","start_date":"2020","end_date":"2024","highlights":["Built the billing pipeline"]}]}`),
			OrderIndex: 1,
		},
		{
			Type:       SectionSkills,
			Title:      "Skills",
			Content:    json.RawMessage(`{"items":[{"name":"Go","level":"expert"},{"name":"PostgreSQL"}]}`),
			OrderIndex: 2,
		},
	}
}

func TestRenderDeterministic(t *testing.T) {
	resume := sampleResume()
	sections := sampleSections()
	settings := Settings{}

	first, err := Render(resume, sections, "modern", settings)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	second, err := Render(resume, sections, "modern", settings)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if first != second {
		t.Fatal("two renders of identical input differ")
	}
}

func TestRenderVisibleSectionsExactFilter(t *testing.T) {
	html, err := Render(sampleResume(), sampleSections(), "modern", Settings{
		VisibleSections: []string{SectionSummary, SectionSkills},
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	if !strings.Contains(html, `data-section="summary"`) {
		t.Error("summary fragment missing")
	}
	if !strings.Contains(html, `data-section="skills"`) {
		t.Error("skills fragment missing")
	}
	if strings.Contains(html, `data-section="experience"`) {
		t.Error("experience fragment rendered despite filter")
	}
}

func TestRenderMalformedSectionDegrades(t *testing.T) {
	sections := sampleSections()
	sections[1].Content = json.RawMessage(`{"items": "this is not a list"`)

	html, err := Render(sampleResume(), sections, "modern", Settings{})
	if err != nil {
		t.Fatalf("render must not fail on malformed section data: %v", err)
	}
	if strings.Contains(html, `data-section="experience"`) {
		t.Error("malformed experience section should be omitted")
	}
	if !strings.Contains(html, `data-section="summary"`) {
		t.Error("healthy sections must survive a malformed sibling")
	}
}

func TestRenderUnknownSectionTypeFallsBack(t *testing.T) {
	sections := []Section{{
		Type:    "volunteering",
		Title:   "Volunteering",
		Content: json.RawMessage(`"Taught Go at the local meetup"`),
	}}

	html, err := Render(sampleResume(), sections, "modern", Settings{})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(html, "Volunteering") {
		t.Error("generic fallback should keep the section title")
	}
	if !strings.Contains(html, "Taught Go at the local meetup") {
		t.Error("generic fallback should stringify the content")
	}
}

func TestRenderDeclarationHiddenByDefault(t *testing.T) {
	sections := append(sampleSections(), Section{
		Type:       SectionDeclaration,
		Title:      "Declaration",
		Content:    json.RawMessage(`{"text":"I hereby declare the above is true."}`),
		OrderIndex: 9,
	})

	html, err := Render(sampleResume(), sections, "modern", Settings{})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(html, `data-section="declaration"`) {
		t.Error("declaration must be excluded by the default policy")
	}

	// 显式可见列表可以覆盖缺省策略。
	html, err = Render(sampleResume(), sections, "modern", Settings{
		VisibleSections: []string{SectionDeclaration},
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(html, `data-section="declaration"`) {
		t.Error("explicit visible list should include declaration")
	}
}

func TestRenderOrderFollowsOrderIndex(t *testing.T) {
	sections := []Section{
		{Type: SectionSkills, Title: "Skills", Content: json.RawMessage(`{"items":[{"name":"Go"}]}`), OrderIndex: 5},
		{Type: SectionSummary, Title: "Summary", Content: json.RawMessage(`{"text":"hello"}`), OrderIndex: 1},
	}

	html, err := Render(sampleResume(), sections, "modern", Settings{})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	summaryAt := strings.Index(html, `data-section="summary"`)
	skillsAt := strings.Index(html, `data-section="skills"`)
	if summaryAt < 0 || skillsAt < 0 {
		t.Fatal("both sections must render")
	}
	if summaryAt > skillsAt {
		t.Error("sections not ordered by order_index")
	}
}

func TestRenderUnknownTemplateFallsBackToModern(t *testing.T) {
	html, err := Render(sampleResume(), sampleSections(), "no-such-variant", Settings{})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(html, "variant-modern") {
		t.Error("unknown template id should fall back to modern")
	}
}

func TestRenderSelfContained(t *testing.T) {
	html, err := Render(sampleResume(), sampleSections(), "glass", Settings{})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(html, "<link") || strings.Contains(html, "<script") {
		t.Error("output must not reference external resources")
	}
	if !strings.Contains(html, "<style>") {
		t.Error("styling must be inlined")
	}
}

func TestRenderRejectsUnsafeThemeColor(t *testing.T) {
	resume := sampleResume()
	resume.ThemeColor = "red;}body{display:none"

	html, err := Render(resume, sampleSections(), "modern", Settings{})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(html, "display:none") {
		t.Error("unsafe theme color leaked into the stylesheet")
	}
	if !strings.Contains(html, "--accent:#2563eb") {
		t.Error("unsafe theme color should fall back to the default accent")
	}
}

func TestNotFoundPageContainsSlug(t *testing.T) {
	html := NotFoundPage("does-not-exist")
	if !strings.Contains(html, "does-not-exist") {
		t.Error("not found page should echo the slug")
	}
	if !strings.Contains(html, "Create your own") {
		t.Error("not found page should carry the create-your-own call to action")
	}
}
