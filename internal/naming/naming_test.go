package naming

import (
	"strconv"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("a", 70)

	tests := []struct {
		in   string
		want string
	}{
		{"Customer Name", "customer_name"},
		{"  customer   name  ", "customer_name"},
		{"Order-ID", "order_id"},
		{"unit.price", "unit_price"},
		{"Příjmení", "prijmeni"},
		{"Café Olé", "cafe_ole"},
		{"__already__ok__", "already_ok"},
		{"a\tb", "a_b"},
		{"$%^&", "col"},
		{"", "col"},
		{"amount (€)", "amount"},
		{long, long[:63]},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Fatalf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeTruncationJoin(t *testing.T) {
	t.Parallel()

	// byte 9 and the first kept tail byte are both underscores.
	in := "abcdefghi_" + strings.Repeat("x", 20) + "_" + strings.Repeat("y", 52)
	got := Normalize(in)
	if len(got) > MaxIdentLen {
		t.Fatalf("len(Normalize()) = %d, want <= %d", len(got), MaxIdentLen)
	}
	if strings.Contains(got, "__") {
		t.Fatalf("Normalize() = %q contains a double underscore", got)
	}
	if Normalize(got) != got {
		t.Fatalf("Normalize() not idempotent on %q", got)
	}
}

func TestColumn(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"ID", "data_id"},
		{"Created At", "data_created_at"},
		{"updated-at", "data_updated_at"},
		{"data_id", "data_id"},
		{"Identifier", "identifier"},
	}
	for _, tt := range tests {
		if got := Column(tt.in); got != tt.want {
			t.Fatalf("Column(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValid(t *testing.T) {
	t.Parallel()

	for _, ok := range []string{"a", "customer_name", "page_1_orders", "col2"} {
		if !Valid(ok) {
			t.Fatalf("Valid(%q) = false, want true", ok)
		}
	}
	for _, bad := range []string{"", "_a", "a_", "a__b", "A", "a b", `a"; DROP TABLE x; --`, strings.Repeat("a", 64)} {
		if Valid(bad) {
			t.Fatalf("Valid(%q) = true, want false", bad)
		}
	}
}

func TestTableName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		id   int64
		name string
		want string
	}{
		{7, "Q3 Orders", "page_7_q3_orders"},
		{7, "", "page_7_untitled"},
		{12, "   ", "page_12_untitled"},
		{3, "Ventes Été", "page_3_ventes_ete"},
	}
	for _, tt := range tests {
		if got := TableName(tt.id, tt.name); got != tt.want {
			t.Fatalf("TableName(%d, %q) = %q, want %q", tt.id, tt.name, got, tt.want)
		}
	}
	if got := TableName(1, strings.Repeat("x", 100)); !Valid(got) {
		t.Fatalf("TableName() with long name = %q, not a valid identifier", got)
	}
}

func TestTableNameLongNamesKeepPageID(t *testing.T) {
	t.Parallel()

	name := strings.Repeat("quarterly revenue ", 5)
	a, b := TableName(1234567, name), TableName(1234568, name)
	if a == b {
		t.Fatalf("pages 1234567 and 1234568 share table %q", a)
	}
	for id, got := range map[int64]string{1234567: a, 1234568: b} {
		prefix := "page_" + strconv.FormatInt(id, 10) + "_quarterly_revenue"
		if !strings.HasPrefix(got, prefix) {
			t.Fatalf("TableName(%d) = %q, want prefix %q", id, got, prefix)
		}
		if !Valid(got) || len(got) > MaxIdentLen {
			t.Fatalf("TableName(%d) = %q (len %d), not a valid identifier", id, got, len(got))
		}
	}
	if got := TableName(9223372036854775807, strings.Repeat("a b ", 40)); !Valid(got) {
		t.Fatalf("TableName(max id) = %q, not a valid identifier", got)
	}
}

func TestWithSuffix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		n    int
		want string
	}{
		{"page_1_orders", 2, "page_1_orders_2"},
		{"page_1_" + strings.Repeat("a", 56), 12, "page_1_" + strings.Repeat("a", 53) + "_12"},
		{"page_1_" + strings.Repeat("a", 53) + "_bb", 3, "page_1_" + strings.Repeat("a", 53) + "_3"},
	}
	for _, tt := range tests {
		got := WithSuffix(tt.name, tt.n)
		if got != tt.want {
			t.Fatalf("WithSuffix(%q, %d) = %q, want %q", tt.name, tt.n, got, tt.want)
		}
		if !Valid(got) {
			t.Fatalf("WithSuffix(%q, %d) = %q, not a valid identifier", tt.name, tt.n, got)
		}
	}
}

func TestDedup(t *testing.T) {
	t.Parallel()

	got := Dedup([]string{"b", "a", "b", "c", "a"})
	want := []string{"b", "a", "c"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("Dedup() = %v, want %v", got, want)
	}
}

func TestProperty_Normalize(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("normalize is idempotent", prop.ForAll(
		func(s string) bool {
			n := Normalize(s)
			return Normalize(n) == n
		},
		gen.AnyString(),
	))

	properties.Property("normalize output is always a valid identifier", prop.ForAll(
		func(s string) bool {
			return Valid(Normalize(s))
		},
		gen.AnyString(),
	))

	properties.Property("labels differing only in ASCII case map to the same column", prop.ForAll(
		func(s string) bool {
			return Normalize(strings.ToUpper(s)) == Normalize(strings.ToLower(s))
		},
		gen.AlphaString(),
	))

	properties.Property("surrounding whitespace is ignored", prop.ForAll(
		func(s string, pad int) bool {
			ws := strings.Repeat(" \t", pad)
			return Normalize(ws+s+ws) == Normalize(s)
		},
		gen.AnyString(),
		gen.IntRange(0, 4),
	))

	properties.Property("column mapping is idempotent", prop.ForAll(
		func(s string) bool {
			c := Column(s)
			return Column(c) == c && !IsSystem(c)
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
