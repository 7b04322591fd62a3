package dbutil

import (
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var limitRegex = regexp.MustCompile(`(?i)LIMIT\s+\?\s*,\s*\?`)

// Finalize turns gendry output into postgres syntax.
func Finalize(query string, args []interface{}) (string, []interface{}) {
	query, args = rewriteLimit(query, args)
	return sqlx.Rebind(sqlx.DOLLAR, query), args
}

// FinalizeFor adapts gendry output to the given driver.
func FinalizeFor(driver string, query string, args []interface{}) (string, []interface{}) {
	if driver == "postgres" {
		return Finalize(query, args)
	}
	return rewriteLimit(query, args)
}

func rewriteLimit(query string, args []interface{}) (string, []interface{}) {
	loc := limitRegex.FindStringIndex(query)
	if loc != nil {
		prefix := query[:loc[0]]
		qCount := strings.Count(prefix, "?")
		if qCount+1 < len(args) {
			args[qCount], args[qCount+1] = args[qCount+1], args[qCount]
			query = limitRegex.ReplaceAllString(query, "LIMIT ? OFFSET ?")
		}
	}
	return query, args
}

func IsConflict(err error) bool {
	if pgErr, ok := err.(*pq.Error); ok {
		return pgErr.Code == "23505"
	}
	return false
}
