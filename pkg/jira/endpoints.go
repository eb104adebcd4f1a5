package jira

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultAPIVersion resolves to the newest REST version the server supports.
	DefaultAPIVersion = "latest"

	// DefaultJQLTemplate orders by creation time so that offsets stay stable
	// while new issues are filed.
	DefaultJQLTemplate = `project = "%s" ORDER BY created ASC`

	// MaxPageSize is the largest maxResults Jira honours for search.
	MaxPageSize = 1000
)

// SearchEndpoint returns the search URL for the given base and API version.
func SearchEndpoint(baseURL, apiVersion string) string {
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}
	return fmt.Sprintf("%s/rest/api/%s/search", strings.TrimRight(baseURL, "/"), apiVersion)
}

// ProjectJQL renders the search query for one project.
func ProjectJQL(template, project string) string {
	if template == "" {
		template = DefaultJQLTemplate
	}
	return fmt.Sprintf(template, project)
}

// SearchURL constructs the URL for one page of a project's issues.
func SearchURL(endpoint, jql string, startAt, maxResults int, fields []string) string {
	if maxResults <= 0 {
		maxResults = 50
	} else if maxResults > MaxPageSize {
		maxResults = MaxPageSize
	}

	params := url.Values{}
	params.Set("jql", jql)
	params.Set("startAt", strconv.Itoa(startAt))
	params.Set("maxResults", strconv.Itoa(maxResults))
	if len(fields) > 0 {
		params.Set("fields", strings.Join(fields, ","))
	}

	return endpoint + "?" + params.Encode()
}
