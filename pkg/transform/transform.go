package transform

import (
	"bytes"
	"encoding/json"
	"strings"
)

// CommentSeparator joins cleaned comment bodies in comments_text.
const CommentSeparator = " --- "

// Unknown is the default for categorical labels missing upstream.
const Unknown = "Unknown"

// Record is the normalized, flat form of one issue written to the corpus.
// No field is ever null.
type Record struct {
	IssueKey        string `json:"issue_key"`
	Project         string `json:"project"`
	Title           string `json:"title"`
	Status          string `json:"status"`
	CreatedAt       string `json:"created_at"`
	DescriptionText string `json:"description_text"`
	CommentsText    string `json:"comments_text"`
	IssueTypeLabel  string `json:"issue_type_label"`
}

type object map[string]json.RawMessage

// Transform maps one raw search-result issue onto a Record. It never fails:
// a missing, null or mistyped field takes its default ("" for text,
// "Unknown" for status and issue type).
func Transform(raw json.RawMessage) Record {
	issue := asObject(raw)
	fields := asObject(issue["fields"])
	key := asString(issue["key"])

	return Record{
		IssueKey:        key,
		Project:         ProjectOf(key),
		Title:           asString(fields["summary"]),
		Status:          nameOr(fields["status"], Unknown),
		CreatedAt:       asString(fields["created"]),
		DescriptionText: CleanText(richText(fields["description"])),
		CommentsText:    comments(fields["comment"]),
		IssueTypeLabel:  nameOr(fields["issuetype"], Unknown),
	}
}

// ProjectOf returns the project part of an issue key ("KAFKA-123" -> "KAFKA").
func ProjectOf(key string) string {
	project, _, _ := strings.Cut(key, "-")
	return project
}

func asObject(raw json.RawMessage) object {
	var o object
	if json.Unmarshal(raw, &o) != nil {
		return nil
	}
	return o
}

func asString(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

func nameOr(raw json.RawMessage, def string) string {
	if name := asString(asObject(raw)["name"]); name != "" {
		return name
	}
	return def
}

// richText accepts wiki markup strings (REST v2) and ADF documents (v3).
func richText(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return flattenADF(trimmed)
	}
	return asString(raw)
}

func comments(raw json.RawMessage) string {
	var list []json.RawMessage
	if json.Unmarshal(asObject(raw)["comments"], &list) != nil {
		return ""
	}

	bodies := make([]string, len(list))
	for i, c := range list {
		bodies[i] = CleanText(richText(asObject(c)["body"]))
	}
	return strings.Join(bodies, CommentSeparator)
}
