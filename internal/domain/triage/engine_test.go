package triage

import (
	"strings"
	"testing"
)

func f(v float64) *float64 { return &v }

func TestEmergencyKeywordOverride(t *testing.T) {
	e := NewEngine()
	a := e.Assess(Input{SymptomText: "I have chest pain and difficulty breathing"})

	if a.Score != 100 {
		t.Errorf("score = %d, want 100", a.Score)
	}
	if a.Level != LevelCritical {
		t.Errorf("level = %s, want critical", a.Level)
	}
	if a.Priority != 1 {
		t.Errorf("priority = %d, want 1", a.Priority)
	}
	if !a.RuleOverride {
		t.Error("expected rule override flag")
	}
	if len(a.EmergencyFlags) != 2 {
		t.Errorf("flags = %v, want chest pain + difficulty breathing", a.EmergencyFlags)
	}
	if a.Recommendation != "IMMEDIATE EMERGENCY CARE REQUIRED" {
		t.Errorf("recommendation = %q", a.Recommendation)
	}
}

func TestEmergencyOverrideBeatsMildVitals(t *testing.T) {
	e := NewEngine()
	// Normal vitals must not soften a keyword hit.
	a := e.Assess(Input{
		SymptomText: "mild chest pain since lunch",
		Vitals:      Vitals{Temperature: f(36.8), HeartRate: f(72)},
	})
	if a.Score != 100 || !a.RuleOverride {
		t.Errorf("got score=%d override=%v, want 100/true", a.Score, a.RuleOverride)
	}
}

func TestClassifyScoreBoundaries(t *testing.T) {
	cases := []struct {
		score int
		want  SeverityLevel
	}{
		{0, LevelNormal},
		{39, LevelNormal},
		{40, LevelModerate},
		{69, LevelModerate},
		{70, LevelCritical},
		{100, LevelCritical},
	}
	for _, tc := range cases {
		if got := ClassifyScore(tc.score); got != tc.want {
			t.Errorf("ClassifyScore(%d) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestPriorityForLevel(t *testing.T) {
	if PriorityForLevel(LevelCritical) != 1 ||
		PriorityForLevel(LevelModerate) != 2 ||
		PriorityForLevel(LevelNormal) != 3 {
		t.Error("priority mapping broken")
	}
}

func TestKnownSymptomScoring(t *testing.T) {
	e := NewEngine()
	a := e.Assess(Input{SymptomText: "high fever"})

	// Single known symptom at 65: weighted 65, combined 0.7*65 = 45.5 -> 46.
	if a.Score != 46 {
		t.Errorf("score = %d, want 46", a.Score)
	}
	if a.Level != LevelModerate {
		t.Errorf("level = %s, want moderate", a.Level)
	}
	if a.RuleOverride {
		t.Error("no override expected")
	}
}

func TestMildSymptomStaysNormal(t *testing.T) {
	e := NewEngine()
	a := e.Assess(Input{SymptomText: "mild headache"})

	// 25 weighted -> 0.7*25 = 17.5 -> 18.
	if a.Score != 18 {
		t.Errorf("score = %d, want 18", a.Score)
	}
	if a.Level != LevelNormal {
		t.Errorf("level = %s, want normal", a.Level)
	}
}

func TestIntensifierFallback(t *testing.T) {
	e := NewEngine()

	// No table match: base 30 + terrible(15) + unbearable(25) = 70 (clamped),
	// combined 0.7*70 = 49.
	a := e.Assess(Input{SymptomText: "terrible unbearable discomfort"})
	if a.Score != 49 {
		t.Errorf("score = %d, want 49", a.Score)
	}

	// No indicators at all: base 30, combined 21.
	a = e.Assess(Input{SymptomText: "stomach discomfort"})
	if a.Score != 21 {
		t.Errorf("score = %d, want 21", a.Score)
	}
	if a.Level != LevelNormal {
		t.Errorf("level = %s, want normal", a.Level)
	}
}

func TestVitalAnalysis(t *testing.T) {
	e := NewEngine()
	score, abnormalities := e.analyzeVitals(Vitals{
		Temperature:      f(40.0),
		OxygenSaturation: f(85),
		HeartRate:        f(72),
	})

	// Two critical breaches at 30 each, capped at 50.
	if score != 50 {
		t.Errorf("vital score = %d, want 50 (capped)", score)
	}
	if len(abnormalities) != 2 {
		t.Fatalf("abnormalities = %v, want 2", abnormalities)
	}
	// Sorted by vital name for deterministic reasoning strings.
	if abnormalities[0] != "Critical oxygen_saturation: 85" {
		t.Errorf("abnormalities[0] = %q", abnormalities[0])
	}
	if abnormalities[1] != "Critical temperature: 40" {
		t.Errorf("abnormalities[1] = %q", abnormalities[1])
	}
}

func TestVitalModerateTier(t *testing.T) {
	e := NewEngine()
	score, abnormalities := e.analyzeVitals(Vitals{HeartRate: f(110)})
	if score != 15 {
		t.Errorf("vital score = %d, want 15", score)
	}
	if len(abnormalities) != 1 || abnormalities[0] != "Abnormal heart_rate: 110" {
		t.Errorf("abnormalities = %v", abnormalities)
	}
}

func TestCombinedSymptomAndVitalScore(t *testing.T) {
	e := NewEngine()
	a := e.Assess(Input{
		SymptomText: "high fever",
		Vitals:      Vitals{Temperature: f(40.0)},
	})

	// round(0.7*65 + 0.3*30) = round(54.5) = 55.
	if a.Score != 55 {
		t.Errorf("score = %d, want 55", a.Score)
	}
	if a.Level != LevelModerate {
		t.Errorf("level = %s, want moderate", a.Level)
	}
	if len(a.VitalAbnormalities) != 1 {
		t.Errorf("abnormalities = %v", a.VitalAbnormalities)
	}
}

func TestDurationSuddenOnset(t *testing.T) {
	e := NewEngine()
	with := e.Assess(Input{SymptomText: "severe pain", Duration: "sudden onset"})
	without := e.Assess(Input{SymptomText: "severe pain"})

	if with.Score != without.Score+10 {
		t.Errorf("sudden onset: %d vs base %d, want +10", with.Score, without.Score)
	}
}

func TestDurationChronicCap(t *testing.T) {
	e := NewEngine()
	in := Input{
		SymptomText: "patient had a stroke",
		Vitals:      Vitals{Temperature: f(40.0), OxygenSaturation: f(85)},
	}

	acute := e.Assess(in)
	if acute.Score <= 65 {
		t.Fatalf("baseline score = %d, need > 65 for this test", acute.Score)
	}

	in.Duration = "ongoing for 3 weeks"
	chronic := e.Assess(in)
	if chronic.Score != 65 {
		t.Errorf("chronic score = %d, want capped at 65", chronic.Score)
	}
	if chronic.Level != LevelModerate {
		t.Errorf("chronic level = %s, want moderate", chronic.Level)
	}
}

func TestExtractSymptoms(t *testing.T) {
	e := NewEngine()
	symptoms := e.ExtractSymptoms("I have a severe headache, and my stomach hurts")

	found := map[string]bool{}
	for _, s := range symptoms {
		found[s] = true
	}
	if !found["severe headache"] {
		t.Errorf("symptoms = %v, want severe headache", symptoms)
	}
	// Duplicates collapse.
	seen := map[string]int{}
	for _, s := range symptoms {
		seen[s]++
		if seen[s] > 1 {
			t.Errorf("duplicate symptom %q", s)
		}
	}
}

func TestAssessReasoningShape(t *testing.T) {
	e := NewEngine()
	a := e.Assess(Input{SymptomText: "high fever", Vitals: Vitals{Temperature: f(40.0)}})

	parts := strings.Split(a.Reasoning, " | ")
	if len(parts) < 3 {
		t.Fatalf("reasoning = %q, want at least 3 segments", a.Reasoning)
	}
	if !strings.HasPrefix(parts[0], "Symptom analysis score:") {
		t.Errorf("reasoning[0] = %q", parts[0])
	}
	if !strings.Contains(a.Reasoning, "Final severity assessment:") {
		t.Errorf("reasoning missing final segment: %q", a.Reasoning)
	}
}

func TestReassessWorsened(t *testing.T) {
	e := NewEngine()
	re := e.Reassess(55, "still in a lot of pain", ConditionWorsened)

	if re.Score != 75 {
		t.Errorf("score = %d, want 75", re.Score)
	}
	if re.Level != LevelCritical {
		t.Errorf("level = %s, want critical", re.Level)
	}
	if re.ScoreChange != 20 {
		t.Errorf("change = %d, want 20", re.ScoreChange)
	}
}

func TestReassessImproved(t *testing.T) {
	e := NewEngine()
	re := e.Reassess(50, "feeling much better", ConditionImproved)

	if re.Score != 35 || re.Level != LevelNormal || re.ScoreChange != -15 {
		t.Errorf("got score=%d level=%s change=%d", re.Score, re.Level, re.ScoreChange)
	}
}

func TestReassessClamps(t *testing.T) {
	e := NewEngine()
	if re := e.Reassess(95, "worse", ConditionWorsened); re.Score != 100 {
		t.Errorf("worsened from 95 = %d, want 100", re.Score)
	}
	if re := e.Reassess(10, "better", ConditionImproved); re.Score != 0 {
		t.Errorf("improved from 10 = %d, want 0", re.Score)
	}
}

func TestReassessSame(t *testing.T) {
	e := NewEngine()
	re := e.Reassess(45, "about the same", ConditionSame)
	if re.Score != 45 || re.ScoreChange != 0 {
		t.Errorf("got score=%d change=%d, want unchanged", re.Score, re.ScoreChange)
	}
}

func TestReassessEmergencyInFollowUp(t *testing.T) {
	e := NewEngine()
	re := e.Reassess(30, "now having difficulty breathing", ConditionImproved)

	if re.Score != 100 {
		t.Errorf("score = %d, want 100 (emergency re-check overrides direction)", re.Score)
	}
	if len(re.EmergencyFlags) != 1 || re.EmergencyFlags[0] != "difficulty breathing" {
		t.Errorf("flags = %v", re.EmergencyFlags)
	}
	if !strings.Contains(re.Reasoning, "NEW EMERGENCY") {
		t.Errorf("reasoning = %q", re.Reasoning)
	}
}
