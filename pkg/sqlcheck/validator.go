// Package sqlcheck is a defense-in-depth lexical gate for generated SQL.
// It accepts only single-statement, read-only, tenant-scoped queries. It is
// deliberately not a query planner: any read-only query shape passes as long
// as the surface-level safety tokens are present.
package sqlcheck

import (
	"fmt"
	"regexp"
	"strings"
)

// Outcome is the result of validating one SQL string.
type Outcome struct {
	Valid  bool
	Reason string
}

// TenantFilterColumn is the multi-tenancy key every communication-table
// query must carry.
const TenantFilterColumn = "matched_company_id"

// tenantMasterTable is accepted in place of the filter column, for queries
// that scope through a join with the companies master table.
const tenantMasterTable = "companies"

// communicationTables are the tenant-scoped tables that require the filter.
var communicationTables = []string{
	"emails_silver",
	"phone_call_silver",
	"phone_message_silver",
}

var dangerousKeywords = []string{
	"drop", "truncate", "delete", "insert", "update",
	"alter", "create", "grant", "revoke", "exec", "execute",
}

var dangerousRe = regexp.MustCompile(`(?i)\b(` + strings.Join(dangerousKeywords, "|") + `)\b`)

// Validate runs the safety checks in order, short-circuiting on the first
// failure. On success the reason is "Valid".
func Validate(sql string) Outcome {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return Outcome{Valid: false, Reason: "empty or whitespace-only SQL query"}
	}

	// Read-only statement type, judged by the first keyword.
	keyword := firstKeyword(trimmed)
	if keyword == "" {
		return Outcome{Valid: false, Reason: "failed to parse SQL query"}
	}
	if keyword != "SELECT" && keyword != "WITH" {
		return Outcome{Valid: false, Reason: fmt.Sprintf("only SELECT queries are allowed, found: %s", keyword)}
	}

	// Exactly one statement.
	if statementCount(trimmed) > 1 {
		return Outcome{Valid: false, Reason: "multiple SQL statements are not allowed"}
	}

	lower := strings.ToLower(trimmed)

	// Tenant scoping: queries touching communication tables must carry the
	// tenant filter column or reference the companies master table. This is
	// a coarse lexical check, not a join-correctness proof.
	if referencesCommunicationTable(lower) &&
		!strings.Contains(lower, TenantFilterColumn) &&
		!strings.Contains(lower, tenantMasterTable) {
		return Outcome{Valid: false, Reason: fmt.Sprintf("query must filter by %s or join the %s table", TenantFilterColumn, tenantMasterTable)}
	}

	// Dangerous keywords anywhere in the statement, as standalone tokens.
	if m := dangerousRe.FindString(trimmed); m != "" {
		return Outcome{Valid: false, Reason: fmt.Sprintf("dangerous SQL keyword detected: %s", strings.ToUpper(m))}
	}

	// Semicolons: at most one, and only as the final character.
	if n := strings.Count(trimmed, ";"); n > 1 {
		return Outcome{Valid: false, Reason: "multiple SQL statements are not allowed"}
	} else if n == 1 && !strings.HasSuffix(trimmed, ";") {
		return Outcome{Valid: false, Reason: "semicolon is only allowed as the final character"}
	}

	// Comment attack: a line comment ahead of the tenant filter on the same
	// line would silently disable the scoping.
	for _, line := range strings.Split(trimmed, "\n") {
		commentIdx := strings.Index(line, "--")
		filterIdx := strings.Index(line, TenantFilterColumn)
		if commentIdx >= 0 && filterIdx >= 0 && commentIdx < filterIdx {
			return Outcome{Valid: false, Reason: fmt.Sprintf("potential comment attack on the %s filter", TenantFilterColumn)}
		}
	}

	return Outcome{Valid: true, Reason: "Valid"}
}

// firstKeyword returns the first SQL keyword of the statement, upper-cased,
// skipping leading line comments.
func firstKeyword(sql string) string {
	for _, line := range strings.Split(sql, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		fields := strings.FieldsFunc(line, func(r rune) bool {
			return r == ' ' || r == '\t' || r == '(' || r == ';'
		})
		if len(fields) == 0 {
			continue
		}
		return strings.ToUpper(fields[0])
	}
	return ""
}

// statementCount counts non-empty semicolon-separated segments.
func statementCount(sql string) int {
	n := 0
	for _, seg := range strings.Split(sql, ";") {
		if strings.TrimSpace(seg) != "" {
			n++
		}
	}
	return n
}

func referencesCommunicationTable(lowerSQL string) bool {
	for _, t := range communicationTables {
		if strings.Contains(lowerSQL, t) {
			return true
		}
	}
	return false
}
