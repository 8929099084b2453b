package legacy

import "regexp"

var (
	phoneRe        = regexp.MustCompile(`(?:\+?1\s*)?(?:\(?\d{3}\)?[\s.-]?)\d{3}[\s.-]?\d{4}\b`)
	emailRe        = regexp.MustCompile(`(?i)\b[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}\b`)
	ssnRe          = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	dobRe          = regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`)
	mrnRe          = regexp.MustCompile(`(?i)\b(?:MRN|Medical\s*Record)\s*#?\s*\d{5,10}\b`)
	addressRe      = regexp.MustCompile(`(?i)\b\d{1,5}\s+[A-Z0-9][A-Z0-9\s.-]{2,}\b`)
	patientTermsRe = regexp.MustCompile(`(?i)\b(patient|diagnosis|treatment|hipaa|phi|ssn)\b`)
)

type detector struct {
	kind string
	re   *regexp.Regexp
}

var detectors = []detector{
	{"phone", phoneRe},
	{"email", emailRe},
	{"ssn", ssnRe},
	{"dob", dobRe},
	{"mrn", mrnRe},
	{"address", addressRe},
	{"patient_terms", patientTermsRe},
}

type PHIMatch struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

type PHIResult struct {
	Matches []PHIMatch `json:"matches"`
	Score   int        `json:"score"`
	HasPHI  bool       `json:"hasPhi"`
}

// DetectPHI counts matches per detector. Each type contributes at most 3 to
// the score and a score of 2 or more counts as PHI.
func DetectPHI(text string) PHIResult {
	res := PHIResult{Matches: []PHIMatch{}}
	for _, d := range detectors {
		n := len(d.re.FindAllStringIndex(text, -1))
		if n == 0 {
			continue
		}
		res.Matches = append(res.Matches, PHIMatch{Type: d.kind, Count: n})
		res.Score += min(3, n)
	}
	res.HasPHI = res.Score >= 2
	return res
}

// RedactPHI replaces PHI-shaped substrings with typed placeholders.
func RedactPHI(text string) string {
	out := phoneRe.ReplaceAllLiteralString(text, "[REDACTED_PHONE]")
	out = emailRe.ReplaceAllLiteralString(out, "[REDACTED_EMAIL]")
	out = ssnRe.ReplaceAllLiteralString(out, "[REDACTED_SSN]")
	out = dobRe.ReplaceAllLiteralString(out, "[REDACTED_DOB]")
	out = mrnRe.ReplaceAllLiteralString(out, "[REDACTED_MRN]")
	out = addressRe.ReplaceAllLiteralString(out, "[REDACTED_ADDRESS]")
	return out
}
