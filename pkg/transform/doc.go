// Package transform normalizes raw Jira issues into corpus records.
//
// Transform is a pure function with no failure mode; CleanText is the
// best-effort markup filter it applies to descriptions and comments.
package transform
