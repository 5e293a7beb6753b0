package runner

import "strings"

// credentialPrefixes are stripped from the agent environment by name prefix.
// The model API key the agent needs comes back through agent.pass_env.
var credentialPrefixes = []string{
	"OPENAI_API",
	"GROQ_API",
	"ANTHROPIC_API",
	"HF_TOKEN",
	"AWS_SECRET",
	"AWS_SESSION",
	"GITHUB_TOKEN",
	"TRAJRUN_",
}

// credentialNames are stripped by exact name.
var credentialNames = map[string]bool{
	"API_KEY":    true,
	"API_SECRET": true,
	"SECRET_KEY": true,
}

// sanitizeEnv drops credential variables from a KEY=VALUE list. Entries
// without '=' pass through untouched.
func sanitizeEnv(environ []string) []string {
	clean := make([]string, 0, len(environ))
	for _, kv := range environ {
		if name, _, ok := strings.Cut(kv, "="); ok && isSensitive(name) {
			continue
		}
		clean = append(clean, kv)
	}
	return clean
}

func isSensitive(name string) bool {
	upper := strings.ToUpper(name)
	if credentialNames[upper] {
		return true
	}
	for _, prefix := range credentialPrefixes {
		if strings.HasPrefix(upper, prefix) {
			return true
		}
	}
	return false
}
