package runner

import "regexp"

// secretPatterns match API key and token formats that may leak into agent
// output (tracebacks of the OpenAI client echo request headers).
var secretPatterns = []*regexp.Regexp{
	// OpenAI style keys: sk-... (including sk-proj-...)
	regexp.MustCompile(`sk-[a-zA-Z0-9\-_]{20,}`),
	// Hugging Face tokens
	regexp.MustCompile(`hf_[a-zA-Z0-9]{30,}`),
	// Bearer tokens
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9\-_.]{20,}`),
	// Generic long hex tokens
	regexp.MustCompile(`\b[a-f0-9]{64,}\b`),
}

const redactPlaceholder = "[REDACTED]"

// ScanOutput checks text for leaked secrets and returns a redacted copy.
// The second return value is the number of secrets found.
func ScanOutput(output string) (string, int) {
	count := 0
	result := output
	for _, re := range secretPatterns {
		matches := re.FindAllString(result, -1)
		if len(matches) > 0 {
			count += len(matches)
			result = re.ReplaceAllString(result, redactPlaceholder)
		}
	}
	return result, count
}
