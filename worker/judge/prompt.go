package judge

import (
	"fmt"
	"net/url"
	"strings"

	"threatAnalyzer/worker/htmltext"
	"threatAnalyzer/worker/models"
)

// Input is everything judgment knows about one captured page.
type Input struct {
	URL       string
	Domain    string
	HTML      string
	OCRText   string
	Image     []byte
	ImageMIME string
}

const notAvailable = "Not available"

// BuildPrompt renders the analyst instructions. HTML and OCR context are cut
// to fixed prefixes so the request size stays bounded whatever the page holds.
func BuildPrompt(in Input, htmlChars, ocrChars int) string {
	host := in.Domain
	if u, err := url.Parse(in.URL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	signals := htmltext.Extract(in.HTML, host)

	htmlSnippet := orNA(models.Truncate(in.HTML, htmlChars))
	ocrSnippet := orNA(models.Truncate(in.OCRText, ocrChars))
	hits := "none"
	if len(signals.SuspiciousHits) > 0 {
		hits = strings.Join(signals.SuspiciousHits, ", ")
	}

	var b strings.Builder
	b.WriteString("You are a cybersecurity expert analyzing a website screenshot for potential threats.\n\n")
	b.WriteString("Context:\n")
	fmt.Fprintf(&b, "- URL: %s\n", orNA(in.URL))
	fmt.Fprintf(&b, "- Domain: %s\n", orNA(in.Domain))
	fmt.Fprintf(&b, "- Registrable domain: %s\n", orNA(htmltext.RegistrableDomain(host)))
	fmt.Fprintf(&b, "- Page title: %s\n", orNA(models.Truncate(signals.Title, 200)))
	fmt.Fprintf(&b, "- Forms: %d (password fields: %d, posting to another site: %d)\n",
		signals.FormCount, signals.PasswordFields, signals.ExternalForms)
	fmt.Fprintf(&b, "- Suspicious phrases: %s\n", hits)
	fmt.Fprintf(&b, "- HTML snippet: %s\n", htmlSnippet)
	fmt.Fprintf(&b, "- OCR text: %s\n\n", ocrSnippet)
	b.WriteString(`Analyze this screenshot and determine if it represents a cybersecurity threat. Look for:

1. Phishing indicators: login forms mimicking legitimate services, urgent language, suspicious URLs
2. Malware distribution: download prompts, fake software updates, suspicious file offerings
3. Scam content: get-rich-quick schemes, fake prizes, social engineering attempts
4. Brand impersonation: fake banking sites, counterfeit e-commerce, spoofed services
5. Cryptojacking: cryptocurrency mining scripts, wallet-related scams
6. Social engineering: fake tech support, urgent security warnings, deceptive messaging

Respond with a single JSON object and nothing else:
{
    "verdict": "Detailed explanation of your analysis and reasoning",
    "confidence": 0.85,
    "is_threat": true,
    "categories": ["phishing", "brand_impersonation"],
    "indicators": ["Fake login form", "Suspicious domain", "Urgent language"],
    "risk_level": "high"
}

confidence must be a number between 0.0 and 1.0. Focus on concrete visual evidence in the screenshot.
`)
	return b.String()
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return notAvailable
	}
	return s
}
