package judge

import (
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"threatAnalyzer/worker/models"
)

var errNoJSONObject = errors.New("reply holds no JSON object")

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// replyContent returns choices[0].message.content, or the raw body when the
// endpoint did not answer in chat completion shape.
func replyContent(body []byte) string {
	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err == nil && len(resp.Choices) > 0 && resp.Choices[0].Message.Content != "" {
		return resp.Choices[0].Message.Content
	}
	return string(body)
}

// ParseVerdict reads the model answer, preferring the requested JSON object
// and falling back to a keyword scan of free text.
func ParseVerdict(content string) models.Verdict {
	if v, err := parseStructured(content); err == nil {
		return v
	}
	return parseHeuristic(content)
}

func parseStructured(content string) (models.Verdict, error) {
	obj, err := jsonObject(content)
	if err != nil {
		return models.Verdict{}, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(obj), &fields); err != nil {
		return models.Verdict{}, err
	}

	v := models.Verdict{
		Summary:    firstString(fields, "verdict", "reasoning", "summary", "explanation"),
		Confidence: models.ClampConfidence(decodeFloat(fields["confidence"])),
		IsThreat:   decodeBool(fields["is_threat"]),
		Categories: decodeStrings(fields["categories"]),
		Indicators: decodeStrings(fields["indicators"]),
		RiskLevel:  firstString(fields, "risk_level"),
	}
	if v.Summary == "" {
		v.Summary = "No analysis provided"
	}
	if v.RiskLevel == "" {
		v.RiskLevel = "unknown"
	}
	v.Label = models.LabelSafe
	if v.IsThreat {
		v.Label = models.LabelMalicious
	}
	return v, nil
}

// jsonObject strips code fences and returns the outermost {...} span.
func jsonObject(content string) (string, error) {
	s := strings.TrimSpace(content)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", errNoJSONObject
	}
	return s[start : end+1], nil
}

func firstString(fields map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		raw, ok := fields[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func decodeFloat(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(s), "%"), 64); err == nil {
			if strings.HasSuffix(strings.TrimSpace(s), "%") {
				return f / 100
			}
			return f
		}
	}
	return 0
}

func decodeBool(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "yes", "1":
			return true
		}
	}
	return false
}

func decodeStrings(raw json.RawMessage) []string {
	out := []string{}
	if len(raw) == 0 {
		return out
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return out
	}
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

var (
	confidencePattern = regexp.MustCompile(`\b(0\.\d+|1\.0+)\b`)
	knownCategories   = []string{"phishing", "malware", "scam", "brand_impersonation", "cryptojacking", "social_engineering"}

	// "nothing malicious", "not at all suspicious", "non-malicious"
	negatedThreat = regexp.MustCompile(`\b(?:not|no|nothing|never|without|non|isn't|wasn't|aren't)(?:\s+\w+){0,2}?[\s-]+(?:malicious|suspicious)\b`)
	// "unsafe", "not safe", "isn't really safe"
	negatedSafe = regexp.MustCompile(`\bunsafe\b|\b(?:not|never|isn't|wasn't|aren't)(?:\s+\w+)?\s+safe\b`)
)

const (
	fallbackConfidence = 0.5
	maxReasons         = 3
	minReasonLen       = 20
)

func parseHeuristic(content string) models.Verdict {
	lower := strings.ToLower(content)

	v := models.Verdict{
		Label:      models.LabelUnknown,
		Confidence: fallbackConfidence,
		Categories: []string{},
		Indicators: []string{},
		RiskLevel:  "unknown",
	}
	// Negated mentions must not decide the label.
	claims := negatedThreat.ReplaceAllString(lower, " ")
	switch {
	case strings.Contains(claims, "malicious"):
		v.Label = models.LabelMalicious
		v.IsThreat = true
	case strings.Contains(claims, "suspicious"), negatedSafe.MatchString(claims):
		v.Label = models.LabelSuspicious
		v.IsThreat = true
	case strings.Contains(claims, "safe"):
		v.Label = models.LabelSafe
	}

	if m := confidencePattern.FindString(content); m != "" {
		if f, err := strconv.ParseFloat(m, 64); err == nil {
			v.Confidence = models.ClampConfidence(f)
		}
	}

	if v.IsThreat {
		for _, c := range knownCategories {
			if strings.Contains(lower, c) || strings.Contains(lower, strings.ReplaceAll(c, "_", " ")) {
				v.Categories = append(v.Categories, c)
			}
		}
	}

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*•#>"))
		if len(line) < minReasonLen || strings.ContainsAny(line[:1], "{}[]\"") {
			continue
		}
		v.Indicators = append(v.Indicators, line)
		if len(v.Indicators) == maxReasons {
			break
		}
	}

	switch {
	case len(v.Indicators) > 0:
		v.Summary = v.Indicators[0]
	case strings.TrimSpace(content) != "":
		v.Summary = models.Truncate(strings.TrimSpace(content), 200)
	default:
		v.Summary = "empty model reply"
	}
	return v
}
