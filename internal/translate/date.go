package translate

import (
	"regexp"
	"strconv"
)

// datePattern matches a complete single-quoted YYYY-MM-DD token. Requiring
// the quotes immediately around the date (not embedded in a longer
// literal) is what makes it a standalone token rather than part of
// some larger string.
var datePattern = regexp.MustCompile(`'(\d{4})-(\d{2})-(\d{2})'`)

var daysInMonth = [...]int{31, 29, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

func validDate(year, month, day int) bool {
	if month < 1 || month > 12 {
		return false
	}
	if day < 1 {
		return false
	}
	max := daysInMonth[month-1]
	if month == 2 && !isLeapYear(year) {
		max = 28
	}
	return day <= max
}

func isLeapYear(y int) bool {
	return y%4 == 0 && (y%100 != 0 || y%400 == 0)
}

// DateLiteralLifter rewrites complete 'YYYY-MM-DD' literals into
// TO_DATE('YYYY-MM-DD', 'YYYY-MM-DD') calls the backend understands
// natively as a date. Invalid calendar dates are left alone
// so malformed input surfaces as a backend syntax error rather than being
// silently "fixed".
type DateLiteralLifter struct{}

// Lift rewrites sql and returns the rewritten statement plus the count of
// literals rewritten. Only comments are skipped (the date itself is a
// string literal), so a date-shaped literal inside a comment is never
// rewritten.
func (DateLiteralLifter) Lift(sql string) (string, int) {
	count := 0
	out := rewriteOutsideComments(sql, func(code string) string {
		return datePattern.ReplaceAllStringFunc(code, func(match string) string {
			groups := datePattern.FindStringSubmatch(match)
			year, _ := strconv.Atoi(groups[1])
			month, _ := strconv.Atoi(groups[2])
			day, _ := strconv.Atoi(groups[3])
			if !validDate(year, month, day) {
				return match
			}
			count++
			return "TO_DATE(" + match + ", " + match + ")"
		})
	})
	return out, count
}
