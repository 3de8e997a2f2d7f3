package triage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Providers supported by the remote scorer.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// RemoteConfig configures the remote AI scorer.
type RemoteConfig struct {
	Provider string
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// RemoteScorer scores assessments through an external LLM API. Every
// failure mode (transport, non-2xx, malformed JSON, out-of-schema values)
// is reported as a *ScoreError; the caller decides the fallback policy.
type RemoteScorer struct {
	cfg    RemoteConfig
	client *http.Client
}

func NewRemoteScorer(cfg RemoteConfig) *RemoteScorer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &RemoteScorer{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// remoteAssessment is the response schema the provider must produce.
type remoteAssessment struct {
	SeverityScore      int      `json:"severity_score"`
	SeverityLevel      string   `json:"severity_level"`
	Priority           int      `json:"priority"`
	EmergencyFlags     []string `json:"emergency_flags"`
	DetectedSymptoms   []string `json:"detected_symptoms"`
	VitalAbnormalities []string `json:"vital_abnormalities"`
	Recommendations    []string `json:"recommendations"`
	Reasoning          string   `json:"reasoning"`
	Confidence         int      `json:"confidence"`
}

func (s *RemoteScorer) Assess(ctx context.Context, in Input) (*Assessment, error) {
	prompt := BuildPrompt(in)

	var raw string
	var err error
	switch s.cfg.Provider {
	case ProviderAnthropic:
		raw, err = s.callAnthropic(ctx, prompt)
	default:
		raw, err = s.callOpenAI(ctx, prompt)
	}
	if err != nil {
		return nil, &ScoreError{Provider: s.cfg.Provider, Err: err}
	}

	parsed, err := parseRemoteAssessment(raw)
	if err != nil {
		return nil, &ScoreError{Provider: s.cfg.Provider, Err: err}
	}

	level := SeverityLevel(parsed.SeverityLevel)
	return &Assessment{
		Score: parsed.SeverityScore,
		Level: level,
		// The provider's own priority field is ignored; level is the
		// single source of truth.
		Priority:           PriorityForLevel(level),
		Symptoms:           parsed.DetectedSymptoms,
		EmergencyFlags:     parsed.EmergencyFlags,
		VitalAbnormalities: parsed.VitalAbnormalities,
		Reasoning:          parsed.Reasoning,
		Recommendation:     strings.Join(parsed.Recommendations, "; "),
	}, nil
}

// parseRemoteAssessment extracts and validates the JSON object in a model
// response. Providers sometimes wrap the object in explanatory text, so
// everything outside the outermost braces is discarded.
func parseRemoteAssessment(content string) (*remoteAssessment, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var parsed remoteAssessment
	if err := json.Unmarshal([]byte(content[start:end+1]), &parsed); err != nil {
		return nil, fmt.Errorf("decode assessment: %w", err)
	}

	if parsed.SeverityScore < 0 || parsed.SeverityScore > 100 {
		return nil, fmt.Errorf("severity_score %d out of range", parsed.SeverityScore)
	}
	switch SeverityLevel(parsed.SeverityLevel) {
	case LevelNormal, LevelModerate, LevelCritical:
	default:
		return nil, fmt.Errorf("unknown severity_level %q", parsed.SeverityLevel)
	}
	if parsed.Reasoning == "" {
		parsed.Reasoning = "AI analysis completed"
	}
	return &parsed, nil
}

// BuildPrompt renders the structured clinical prompt sent to the provider.
func BuildPrompt(in Input) string {
	var b strings.Builder
	b.WriteString("You are an expert emergency medicine physician AI assistant. ")
	b.WriteString("Analyze this patient case and provide a triage assessment.\n\n")

	fmt.Fprintf(&b, "PATIENT INFORMATION:\n- Age: %d years old\n- Pain Level: %d/10\n", in.Age, in.PainLevel)
	fmt.Fprintf(&b, "- Duration of Symptoms: %s\n", orDefault(in.Duration, "Not specified"))
	comorbidities := "None reported"
	if len(in.Comorbidities) > 0 {
		comorbidities = strings.Join(in.Comorbidities, ", ")
	}
	fmt.Fprintf(&b, "- Pre-existing Conditions: %s\n\n", comorbidities)

	fmt.Fprintf(&b, "CHIEF COMPLAINT & SYMPTOMS:\n%s\n\n", in.SymptomText)

	b.WriteString("VITAL SIGNS:\n")
	fmt.Fprintf(&b, "- Temperature: %s C\n", vitalString(in.Vitals.Temperature))
	fmt.Fprintf(&b, "- Heart Rate: %s bpm\n", vitalString(in.Vitals.HeartRate))
	fmt.Fprintf(&b, "- Blood Pressure: %s/%s mmHg\n",
		vitalString(in.Vitals.BloodPressureSystolic), vitalString(in.Vitals.BloodPressureDiastolic))
	fmt.Fprintf(&b, "- Respiratory Rate: %s breaths/min\n", vitalString(in.Vitals.RespiratoryRate))
	fmt.Fprintf(&b, "- Oxygen Saturation: %s%%\n\n", vitalString(in.Vitals.OxygenSaturation))

	b.WriteString(`TASK: Respond ONLY with valid JSON (no markdown, no code blocks):

{
  "severity_score": <integer 0-100>,
  "severity_level": "<critical|moderate|normal>",
  "priority": <1|2|3>,
  "emergency_flags": ["<critical symptom>"],
  "detected_symptoms": ["<symptom>"],
  "vital_abnormalities": ["<abnormality with value>"],
  "recommendations": ["<action>"],
  "reasoning": "<2-3 sentence explanation>",
  "confidence": <0-100>
}

SCORING GUIDELINES:
- 0-39 (normal): minor conditions, stable vitals, can wait 30+ minutes
- 40-69 (moderate): concerning symptoms, see within 15-30 minutes
- 70-100 (critical): life-threatening, immediate attention required`)

	return b.String()
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func vitalString(v *float64) string {
	if v == nil {
		return "Not recorded"
	}
	return fmt.Sprintf("%g", *v)
}

// --- provider calls ---

type openAIRequest struct {
	Model          string          `json:"model"`
	Messages       []openAIMessage `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
}

func (s *RemoteScorer) callOpenAI(ctx context.Context, prompt string) (string, error) {
	reqBody := openAIRequest{
		Model: s.cfg.Model,
		Messages: []openAIMessage{
			{Role: "system", Content: "You are an expert emergency medicine physician specializing in medical triage. Provide accurate, evidence-based assessments in JSON format only."},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.2,
	}
	reqBody.ResponseFormat.Type = "json_object"

	body, err := s.post(ctx, map[string]string{
		"Authorization": "Bearer " + s.cfg.APIKey,
	}, reqBody)
	if err != nil {
		return "", err
	}

	var resp openAIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode provider response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("provider returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

type anthropicRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []openAIMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

func (s *RemoteScorer) callAnthropic(ctx context.Context, prompt string) (string, error) {
	reqBody := anthropicRequest{
		Model:     s.cfg.Model,
		MaxTokens: 1024,
		Messages:  []openAIMessage{{Role: "user", Content: prompt}},
	}

	body, err := s.post(ctx, map[string]string{
		"x-api-key":         s.cfg.APIKey,
		"anthropic-version": "2023-06-01",
	}, reqBody)
	if err != nil {
		return "", err
	}

	var resp anthropicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode provider response: %w", err)
	}
	if len(resp.Content) == 0 {
		return "", fmt.Errorf("provider returned no content")
	}
	return resp.Content[0].Text, nil
}

func (s *RemoteScorer) post(ctx context.Context, headers map[string]string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
