package auth

import (
	"fmt"
	"io"
	"strings"
)

// ShowTokenGuide prints how to obtain credentials for a Jira site.
func ShowTokenGuide(w io.Writer) {
	rule := strings.Repeat("=", 72)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "JIRA API CREDENTIALS")
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Public trackers such as issues.apache.org allow anonymous search.")
	fmt.Fprintln(w, "Credentials raise rate limits and unlock private projects.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Jira Cloud:")
	fmt.Fprintln(w, "  1. Open https://id.atlassian.com/manage-profile/security/api-tokens")
	fmt.Fprintln(w, "  2. Create an API token and copy it")
	fmt.Fprintln(w, "  3. Log in with your account email and the token")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Jira Data Center / Server:")
	fmt.Fprintln(w, "  1. Open your profile, then Personal Access Tokens")
	fmt.Fprintln(w, "  2. Create a token with read access")
	fmt.Fprintln(w, "  3. Log in with the token and leave the email empty")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Tokens grant the same access as your account. Do not share them.")
	fmt.Fprintln(w, rule)
}
