package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractDataSources(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want []string
	}{
		{
			"single table",
			"SELECT * FROM communications.emails_silver WHERE matched_company_id = 1",
			[]string{"Email Communications"},
		},
		{
			"join dedupes and sorts",
			"SELECT * FROM communications.phone_call_silver p JOIN public.companies c ON c.id = p.matched_company_id JOIN communications.phone_call_silver q ON q.id = p.id",
			[]string{"Companies Master Data", "Phone Calls"},
		},
		{
			"case insensitive",
			"select * from Communications.Emails_Silver where matched_company_id = 1",
			[]string{"Email Communications"},
		},
		{
			"unknown table keeps raw name",
			"SELECT * FROM archive.legacy_notes",
			[]string{"archive.legacy_notes"},
		},
		{
			"no qualified tables",
			"SELECT 1",
			nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractDataSources(tt.sql))
		})
	}
}

func TestSummarizeResult(t *testing.T) {
	sources := []string{"Email Communications"}

	assert.Equal(t, "No matching records from Email Communications",
		summarizeResult(QueryResult{Count: 0}, sources, 1))
	assert.Equal(t, "1 record from Email Communications",
		summarizeResult(QueryResult{Count: 1}, sources, 1))
	assert.Equal(t, "42 records from Email Communications (after 2 attempts)",
		summarizeResult(QueryResult{Count: 42}, sources, 2))
	assert.Equal(t, "3 records", summarizeResult(QueryResult{Count: 3}, nil, 1))
}
