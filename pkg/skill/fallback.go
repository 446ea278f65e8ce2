package skill

import (
	"fmt"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
)

// FormatFallback renders query rows into a deterministic, human-readable
// answer without any text-generation call. It is the fallback used when
// natural-language rendering is disabled or unavailable; it must always
// produce a non-empty response.
func FormatFallback(s Skill, rows []map[string]any, sql string) string {
	switch s {
	case PhoneCalls:
		return formatPhoneCalls(rows)
	case PhoneMessages:
		return formatPhoneMessages(rows)
	case EmailCommunications:
		return formatEmails(rows)
	case CompaniesData:
		return formatCompany(rows)
	case Documents:
		return formatDocuments(rows)
	default:
		return formatGeneric(rows)
	}
}

func str(row map[string]any, key string) (string, bool) {
	v, ok := row[key]
	if !ok || v == nil {
		return "", false
	}
	return fmt.Sprintf("%v", v), true
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}

func formatPhoneCalls(rows []map[string]any) string {
	if len(rows) == 0 {
		return "No phone calls found."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d phone call(s).\n\n", len(rows))
	for i, call := range rows {
		if i == 5 {
			break
		}
		fmt.Fprintf(&sb, "**Call %d:**\n", i+1)
		if v, ok := str(call, "direction"); ok {
			fmt.Fprintf(&sb, "Direction: %s\n", v)
		}
		if v, ok := str(call, "type"); ok {
			fmt.Fprintf(&sb, "Type: %s\n", v)
		}
		if v, ok := str(call, "call_created_at"); ok {
			fmt.Fprintf(&sb, "Date: %s\n", v)
		}
		if v, ok := str(call, "recording_summary"); ok && v != "" {
			fmt.Fprintf(&sb, "Summary: %s\n", truncate(v, 300))
		}
		sb.WriteString("\n")
	}
	if len(rows) > 5 {
		fmt.Fprintf(&sb, "...and %d more calls.\n", len(rows)-5)
	}
	return sb.String()
}

func formatPhoneMessages(rows []map[string]any) string {
	if len(rows) == 0 {
		return "No text messages found."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d text message(s).\n\n", len(rows))
	for i, msg := range rows {
		if i == 10 {
			break
		}
		fmt.Fprintf(&sb, "**Message %d:**\n", i+1)
		if v, ok := str(msg, "direction"); ok {
			label := "From Harper"
			if v == "incoming" {
				label = "From client"
			}
			fmt.Fprintf(&sb, "Direction: %s\n", label)
		}
		if v, ok := str(msg, "message_created_at"); ok {
			fmt.Fprintf(&sb, "Date: %s\n", v)
		}
		if v, ok := str(msg, "message_body"); ok {
			fmt.Fprintf(&sb, "Content: %s\n", v)
		}
		sb.WriteString("\n")
	}
	if len(rows) > 10 {
		fmt.Fprintf(&sb, "...and %d more messages.\n", len(rows)-10)
	}
	return sb.String()
}

func formatEmails(rows []map[string]any) string {
	if len(rows) == 0 {
		return "No emails found."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d email(s).\n\n", len(rows))
	for i, email := range rows {
		if i == 5 {
			break
		}
		fmt.Fprintf(&sb, "**Email %d:**\n", i+1)
		if v, ok := str(email, "subject"); ok {
			fmt.Fprintf(&sb, "Subject: %s\n", v)
		}
		if v, ok := str(email, "sender_name"); ok {
			fmt.Fprintf(&sb, "From: %s\n", v)
		} else if v, ok := str(email, "sender_email"); ok {
			fmt.Fprintf(&sb, "From: %s\n", v)
		}
		if v, ok := str(email, "sent_date"); ok {
			fmt.Fprintf(&sb, "Date: %s\n", v)
		}
		if v, ok := str(email, "body_text"); ok && v != "" {
			fmt.Fprintf(&sb, "Preview: %s\n", truncate(v, 300))
		}
		sb.WriteString("\n")
	}
	if len(rows) > 5 {
		fmt.Fprintf(&sb, "...and %d more emails.\n", len(rows)-5)
	}
	return sb.String()
}

func formatCompany(rows []map[string]any) string {
	if len(rows) == 0 {
		return "No company information found."
	}

	company := rows[0]
	name := "Company"
	if v, ok := str(company, "company_name"); ok {
		name = v
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "**%s**\n\n", name)
	if v, ok := str(company, "company_primary_email"); ok {
		fmt.Fprintf(&sb, "Email: %s\n", v)
	}
	if v, ok := str(company, "company_primary_phone"); ok {
		fmt.Fprintf(&sb, "Phone: %s\n", v)
	}
	if v, ok := str(company, "company_industry"); ok {
		fmt.Fprintf(&sb, "Industry: %s\n", v)
	}
	ft, ftOK := company["company_full_time_employees"]
	pt, ptOK := company["company_part_time_employees"]
	if ftOK || ptOK {
		fmt.Fprintf(&sb, "Employees: %s FT, %s PT\n", numOrZero(ft), numOrZero(pt))
	}
	return sb.String()
}

func numOrZero(v any) string {
	if v == nil {
		return "0"
	}
	return fmt.Sprintf("%v", v)
}

func formatDocuments(rows []map[string]any) string {
	if len(rows) == 0 {
		return "No documents found for this company."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d document(s):\n\n", len(rows))
	for i, doc := range rows {
		if i == 5 {
			break
		}
		filename := "Unknown"
		if v, ok := str(doc, "filename"); ok {
			filename = v
		}
		contentType := "Unknown"
		if v, ok := str(doc, "content_type"); ok {
			contentType = v
		}
		fmt.Fprintf(&sb, "**%d. %s** (%s)\n", i+1, filename, contentType)
	}
	if len(rows) > 5 {
		fmt.Fprintf(&sb, "...and %d more documents.\n", len(rows)-5)
	}
	return sb.String()
}

// formatGeneric renders arbitrary result rows as a bounded ASCII table,
// with a one-line count summary.
func formatGeneric(rows []map[string]any) string {
	if len(rows) == 0 {
		return "Query completed but returned no results."
	}

	columns := make([]string, 0, len(rows[0]))
	for col := range rows[0] {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d result(s).\n\n", len(rows))

	table := tablewriter.NewWriter(&sb)
	table.SetHeader(columns)
	for i, row := range rows {
		if i == 10 {
			break
		}
		values := make([]string, len(columns))
		for j, col := range columns {
			if v, ok := str(row, col); ok {
				values[j] = truncate(v, 60)
			}
		}
		table.Append(values)
	}
	table.Render()

	if len(rows) > 10 {
		fmt.Fprintf(&sb, "...and %d more rows.\n", len(rows)-10)
	}
	return sb.String()
}
