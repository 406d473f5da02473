package translate

import "testing"

func TestDateLiteralLifterRewritesCompleteToken(t *testing.T) {
	out, count := DateLiteralLifter{}.Lift(`SELECT * FROM t WHERE d = '2024-01-15'`)
	want := `SELECT * FROM t WHERE d = TO_DATE('2024-01-15', '2024-01-15')`
	if out != want || count != 1 {
		t.Fatalf("got %q (count=%d), want %q", out, count, want)
	}
}

func TestDateLiteralLifterLeavesInvalidDatesAlone(t *testing.T) {
	out, count := DateLiteralLifter{}.Lift(`SELECT '2024-02-30'`)
	if out != `SELECT '2024-02-30'` || count != 0 {
		t.Fatalf("expected invalid date left untouched, got %q count=%d", out, count)
	}
}

func TestDateLiteralLifterSkipsComments(t *testing.T) {
	sql := "SELECT 1 -- was '2024-01-15' once\n"
	out, count := DateLiteralLifter{}.Lift(sql)
	if out != sql || count != 0 {
		t.Fatalf("expected comment left untouched, got %q count=%d", out, count)
	}
}

func TestDateLiteralLifterHandlesLeapYear(t *testing.T) {
	out, count := DateLiteralLifter{}.Lift(`SELECT '2024-02-29'`)
	if count != 1 {
		t.Fatalf("2024-02-29 is valid (leap year), got count=%d out=%q", count, out)
	}
}
