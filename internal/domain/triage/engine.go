package triage

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// emergencyKeywords force an immediate critical classification when they
// appear anywhere in the symptom text. Clinical safety: no other signal may
// downgrade a keyword hit.
var emergencyKeywords = []string{
	"chest pain", "difficulty breathing", "unconscious", "severe bleeding",
	"stroke symptoms", "heart attack", "seizure", "suicide", "overdose",
	"severe head injury", "choking", "anaphylaxis", "severe burns",
}

// symptomSeverity maps known symptom phrases to a 0-100 base severity.
var symptomSeverity = map[string]int{
	// Critical symptoms (70-100)
	"chest pain": 95, "heart attack": 100, "stroke": 100, "unconscious": 100,
	"difficulty breathing": 90, "severe bleeding": 95, "seizure": 90,
	"anaphylaxis": 95, "overdose": 95, "severe head injury": 90,
	"choking": 95, "severe burns": 85, "suicide": 100,

	// Moderate symptoms (40-69)
	"high fever": 65, "severe pain": 60, "vomiting": 55, "diarrhea": 50,
	"abdominal pain": 60, "broken bone": 65, "severe headache": 60,
	"moderate bleeding": 55, "allergic reaction": 60, "dehydration": 55,
	"infected wound": 50, "persistent cough": 45, "back pain": 50,

	// Normal/mild symptoms (0-39)
	"mild headache": 25, "common cold": 20, "sore throat": 25,
	"minor cut": 15, "mild fever": 30, "runny nose": 15,
	"mild cough": 20, "minor rash": 20, "fatigue": 25,
	"mild nausea": 25, "minor pain": 20, "bruise": 15,
}

// severityIndicators adjust the lexical fallback score when no known
// symptom phrase matches.
var severityIndicators = map[string]int{
	"severe": 20, "extreme": 25, "unbearable": 25, "intense": 15,
	"terrible": 15, "awful": 15, "bad": 10, "moderate": 5, "mild": -5,
}

// vitalRange holds the four-tier abnormality thresholds for one vital sign.
type vitalRange struct {
	CriticalLow  float64
	Low          float64
	High         float64
	CriticalHigh float64
}

var vitalThresholds = map[string]vitalRange{
	"temperature":              {35.5, 36.0, 38.0, 39.5},
	"heart_rate":               {50, 60, 100, 120},
	"blood_pressure_systolic":  {90, 100, 140, 180},
	"blood_pressure_diastolic": {60, 70, 90, 110},
	"respiratory_rate":         {10, 12, 20, 30},
	"oxygen_saturation":        {90, 95, 100, 100},
}

const (
	vitalCriticalPoints = 30
	vitalModeratePoints = 15
	vitalScoreCap       = 50
)

// Engine is the rule-based severity scorer. It is stateless and safe for
// concurrent use.
type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

// CheckEmergencyKeywords scans text for the emergency vocabulary,
// returning every matched keyword.
func (e *Engine) CheckEmergencyKeywords(text string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, kw := range emergencyKeywords {
		if strings.Contains(lower, kw) {
			found = append(found, kw)
		}
	}
	return found
}

// stopwords excluded from extracted phrases.
var stopwords = map[string]struct{}{
	"i": {}, "a": {}, "an": {}, "the": {}, "my": {}, "me": {}, "have": {},
	"has": {}, "had": {}, "am": {}, "is": {}, "are": {}, "was": {}, "been": {},
	"feel": {}, "feels": {}, "feeling": {}, "and": {}, "or": {}, "but": {},
	"with": {}, "for": {}, "of": {}, "in": {}, "on": {}, "to": {}, "it": {},
	"this": {}, "that": {}, "very": {}, "really": {}, "since": {}, "also": {},
	"cant": {}, "can't": {}, "cannot": {}, "im": {}, "i'm": {},
}

// ExtractSymptoms derives a deduplicated set of candidate symptom phrases
// from free text: clause phrases of up to four non-stopword tokens, plus
// substring matches against the known symptom table.
func (e *Engine) ExtractSymptoms(text string) []string {
	lower := strings.ToLower(text)

	seen := make(map[string]struct{})
	var symptoms []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		symptoms = append(symptoms, s)
	}

	// Split into clauses on punctuation, then strip stopwords to form
	// short phrases.
	clauses := strings.FieldsFunc(lower, func(r rune) bool {
		return r == ',' || r == '.' || r == ';' || r == '!' || r == '?'
	})
	for _, clause := range clauses {
		var phrase []string
		flush := func() {
			if n := len(phrase); n > 0 && n <= 4 {
				add(strings.Join(phrase, " "))
			}
			phrase = phrase[:0]
		}
		for _, word := range strings.Fields(clause) {
			word = strings.Trim(word, "()\"'")
			if _, stop := stopwords[word]; stop || word == "" {
				flush()
				continue
			}
			phrase = append(phrase, word)
		}
		flush()
	}

	// Substring matches against the known table always count, even when
	// phrase splitting missed them.
	for symptom := range symptomSeverity {
		if strings.Contains(lower, symptom) {
			add(symptom)
		}
	}

	sort.Strings(symptoms)
	return symptoms
}

// symptomScore computes the 0-100 symptom contribution. Known-symptom
// matches (exact or partial) are weighted 0.7 toward the maximum severity
// and 0.3 toward the mean; with no match at all, lexical intensifiers
// adjust a base of 30, clamped to [0,70].
func (e *Engine) symptomScore(symptoms []string, text string) int {
	maxSeverity := 0
	sum := 0
	matched := false

	for _, symptom := range symptoms {
		if sev, ok := symptomSeverity[symptom]; ok {
			matched = true
			if sev > maxSeverity {
				maxSeverity = sev
			}
			sum += sev
			continue
		}
		for known, sev := range symptomSeverity {
			if strings.Contains(symptom, known) || strings.Contains(known, symptom) {
				matched = true
				if sev > maxSeverity {
					maxSeverity = sev
				}
				sum += sev
				break
			}
		}
	}

	if !matched {
		score := 30
		lower := strings.ToLower(text)
		for indicator, delta := range severityIndicators {
			if strings.Contains(lower, indicator) {
				score += delta
			}
		}
		if score < 0 {
			score = 0
		}
		if score > 70 {
			score = 70
		}
		return score
	}

	avg := float64(sum) / float64(len(symptoms))
	return int(float64(maxSeverity)*0.7 + avg*0.3)
}

// analyzeVitals scores vital abnormalities against the four-tier
// thresholds: 30 points per critical breach, 15 per moderate breach,
// capped at 50 total. Abnormal vitals are reported with their values.
func (e *Engine) analyzeVitals(vitals Vitals) (int, []string) {
	score := 0
	var abnormalities []string

	values := vitals.Values()
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := values[name]
		t, ok := vitalThresholds[name]
		if !ok {
			continue
		}
		switch {
		case value <= t.CriticalLow || value >= t.CriticalHigh:
			score += vitalCriticalPoints
			abnormalities = append(abnormalities, fmt.Sprintf("Critical %s: %g", name, value))
		case value <= t.Low || value >= t.High:
			score += vitalModeratePoints
			abnormalities = append(abnormalities, fmt.Sprintf("Abnormal %s: %g", name, value))
		}
	}

	if score > vitalScoreCap {
		score = vitalScoreCap
	}
	return score, abnormalities
}

// applyDuration adjusts a score for onset cues in the duration text:
// chronic presentations are capped at 65, sudden onset adds 10 (capped at
// 100). The branches are mutually exclusive; chronic wins.
func applyDuration(score int, duration string) int {
	if duration == "" {
		return score
	}
	lower := strings.ToLower(duration)
	switch {
	case strings.Contains(lower, "chronic") || strings.Contains(lower, "week") || strings.Contains(lower, "month"):
		if score > 65 {
			score = 65
		}
	case strings.Contains(lower, "sudden") || strings.Contains(lower, "acute"):
		score += 10
		if score > 100 {
			score = 100
		}
	}
	return score
}

// Assess runs the full rule-based pipeline: emergency override, symptom
// extraction and scoring, vital analysis, weighted combination, duration
// modifier and classification. It always returns an assessment.
func (e *Engine) Assess(in Input) *Assessment {
	if flags := e.CheckEmergencyKeywords(in.SymptomText); len(flags) > 0 {
		return &Assessment{
			Score:          100,
			Level:          LevelCritical,
			Priority:       PriorityForLevel(LevelCritical),
			Symptoms:       flags,
			EmergencyFlags: flags,
			Reasoning: fmt.Sprintf("Emergency keywords detected: %s. Immediate medical attention required.",
				strings.Join(flags, ", ")),
			RuleOverride:   true,
			Recommendation: "IMMEDIATE EMERGENCY CARE REQUIRED",
		}
	}

	symptoms := e.ExtractSymptoms(in.SymptomText)
	symptomScore := e.symptomScore(symptoms, in.SymptomText)
	vitalScore, abnormalities := e.analyzeVitals(in.Vitals)

	total := int(math.Round(float64(symptomScore)*0.7 + float64(vitalScore)*0.3))
	total = applyDuration(total, in.Duration)

	level := ClassifyScore(total)

	reasoning := []string{fmt.Sprintf("Symptom analysis score: %d/100", symptomScore)}
	if len(abnormalities) > 0 {
		reasoning = append(reasoning, "Vital signs abnormalities detected: "+strings.Join(abnormalities, ", "))
	}
	if len(symptoms) > 0 {
		reasoning = append(reasoning, "Detected symptoms: "+strings.Join(truncate(symptoms, 5), ", "))
	}
	reasoning = append(reasoning, fmt.Sprintf("Final severity assessment: %d/100 (%s)", total, level))

	return &Assessment{
		Score:              total,
		Level:              level,
		Priority:           PriorityForLevel(level),
		Symptoms:           truncate(symptoms, 10),
		EmergencyFlags:     nil,
		VitalAbnormalities: abnormalities,
		Reasoning:          strings.Join(reasoning, " | "),
		Recommendation:     RecommendationForLevel(level),
	}
}

// Reassess adjusts a previous score from follow-up information. A
// worsened condition adds 20 (capped at 100), improved subtracts 15
// (floored at 0). Emergency keywords in the follow-up text override to
// 100 regardless of direction.
func (e *Engine) Reassess(originalScore int, followUpText, conditionChange string) *Reassessment {
	var newScore int
	var reasoning string

	switch conditionChange {
	case ConditionWorsened:
		newScore = originalScore + 20
		if newScore > 100 {
			newScore = 100
		}
		reasoning = "Condition has worsened. Severity increased."
	case ConditionImproved:
		newScore = originalScore - 15
		if newScore < 0 {
			newScore = 0
		}
		reasoning = "Condition has improved. Severity reduced."
	default:
		newScore = originalScore
		reasoning = "Condition remains stable."
	}

	flags := e.CheckEmergencyKeywords(followUpText)
	if len(flags) > 0 {
		newScore = 100
		reasoning += " NEW EMERGENCY: " + strings.Join(flags, ", ")
	}

	level := ClassifyScore(newScore)
	return &Reassessment{
		Score:          newScore,
		Level:          level,
		Priority:       PriorityForLevel(level),
		Symptoms:       e.ExtractSymptoms(followUpText),
		EmergencyFlags: flags,
		Reasoning:      reasoning,
		ScoreChange:    newScore - originalScore,
	}
}

func truncate(list []string, n int) []string {
	if len(list) <= n {
		return list
	}
	return list[:n]
}
