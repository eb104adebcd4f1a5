package jira

import "encoding/json"

// Page is one search response: the issues at StartAt and the project's
// total issue count at the time of the request.
type Page struct {
	StartAt    int
	MaxResults int
	Total      int
	// Issues are left undecoded; their schema belongs to the tracker.
	Issues []json.RawMessage
}

// searchResponse mirrors the body of GET /rest/api/<v>/search.
type searchResponse struct {
	StartAt    int               `json:"startAt"`
	MaxResults int               `json:"maxResults"`
	Total      *int              `json:"total"`
	Issues     []json.RawMessage `json:"issues"`
}

// errorResponse is the body Jira sends with most 4xx responses.
type errorResponse struct {
	ErrorMessages []string          `json:"errorMessages"`
	Errors        map[string]string `json:"errors"`
}

// Credentials authenticate requests. With an Email the token is sent as
// basic auth (Jira Cloud API tokens); without one it is sent as a bearer
// personal access token (Jira Data Center).
type Credentials struct {
	Email    string
	APIToken string
}

// Empty reports whether no token is configured.
func (c Credentials) Empty() bool {
	return c.APIToken == ""
}
