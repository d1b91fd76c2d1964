package schema

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	sqliteddl "dashboard/internal/storage/sqlite/ddl"
)

func TestDefineTable(t *testing.T) {
	t.Parallel()

	s := New(sqliteddl.Dialect{})
	def, stmt, err := s.DefineTable("page_1_orders", []string{"Customer Name", "Amount", "customer name", "ID"})
	if err != nil {
		t.Fatalf("DefineTable() error = %v", err)
	}

	want := []string{"id", "customer_name", "amount", "data_id", "created_at", "updated_at"}
	if diff := cmp.Diff(want, def.Names()); diff != "" {
		t.Fatalf("columns mismatch (-want +got):\n%s", diff)
	}
	if !def.Columns[0].Identity {
		t.Fatalf("id column must be the identity key")
	}
	for _, c := range def.Columns[1:4] {
		if c.SQLType != "TEXT" || !c.Nullable {
			t.Fatalf("data column %s = %+v, want nullable TEXT", c.Name, c)
		}
	}
	for _, frag := range []string{
		`CREATE TABLE IF NOT EXISTS "page_1_orders"`,
		`"id" INTEGER PRIMARY KEY AUTOINCREMENT`,
		`"created_at" DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP`,
		`"updated_at" DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP`,
	} {
		if !strings.Contains(stmt, frag) {
			t.Fatalf("statement missing %q:\n%s", frag, stmt)
		}
	}
}

func TestDefineTable_Errors(t *testing.T) {
	t.Parallel()

	s := New(sqliteddl.Dialect{})
	for _, table := range []string{"", "   "} {
		if _, _, err := s.DefineTable(table, []string{"a"}); err == nil {
			t.Fatalf("DefineTable(%q) error = nil", table)
		}
		if _, _, err := s.EvolveTable(table, nil, []string{"a"}); err == nil {
			t.Fatalf("EvolveTable(%q) error = nil", table)
		}
	}
	if _, _, err := s.DefineTable("page_1_x", nil); err == nil {
		t.Fatalf("DefineTable(no columns) error = nil")
	}
}

func TestDefineTableNormalizesTableName(t *testing.T) {
	t.Parallel()

	s := New(sqliteddl.Dialect{})
	tests := []struct {
		in   string
		want string
	}{
		{"My Table", "my_table"},
		{"  Sales-2024.Q1 ", "sales_2024_q1"},
		{`x"; DROP TABLE y; --`, "x_drop_table_y"},
		{"page_1_orders", "page_1_orders"},
	}
	for _, tt := range tests {
		def, stmt, err := s.DefineTable(tt.in, []string{"a"})
		if err != nil {
			t.Fatalf("DefineTable(%q) error = %v", tt.in, err)
		}
		if def.FQN != tt.want {
			t.Fatalf("DefineTable(%q) table = %q, want %q", tt.in, def.FQN, tt.want)
		}
		if !strings.Contains(stmt, `CREATE TABLE IF NOT EXISTS "`+tt.want+`"`) {
			t.Fatalf("DefineTable(%q) statement:\n%s", tt.in, stmt)
		}

		stmts, _, err := s.EvolveTable(tt.in, []string{"a"}, []string{"a", "b"})
		if err != nil {
			t.Fatalf("EvolveTable(%q) error = %v", tt.in, err)
		}
		if len(stmts) != 1 || !strings.Contains(stmts[0], `"`+tt.want+`"`) {
			t.Fatalf("EvolveTable(%q) = %v, want ALTER of %q", tt.in, stmts, tt.want)
		}
	}
}

func TestEvolveTable(t *testing.T) {
	t.Parallel()

	s := New(sqliteddl.Dialect{})

	tests := []struct {
		name      string
		existing  []string
		incoming  []string
		wantAdded []string
	}{
		{"nothing new", []string{"a", "b"}, []string{"A", " b "}, nil},
		{"one new column", []string{"a", "b"}, []string{"a", "b", "c"}, []string{"c"}},
		{"order follows incoming", []string{"a"}, []string{"z", "a", "m", "z"}, []string{"z", "m"}},
		{"system label becomes data column", []string{"a"}, []string{"id"}, []string{"data_id"}},
		{"empty incoming", []string{"a"}, nil, nil},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			stmts, added, err := s.EvolveTable("page_1_t", tt.existing, tt.incoming)
			if err != nil {
				t.Fatalf("EvolveTable() error = %v", err)
			}
			if diff := cmp.Diff(tt.wantAdded, added); diff != "" {
				t.Fatalf("added mismatch (-want +got):\n%s", diff)
			}
			if len(stmts) != len(added) {
				t.Fatalf("len(stmts) = %d, want %d", len(stmts), len(added))
			}
			for i, st := range stmts {
				want := fmt.Sprintf(`ALTER TABLE "page_1_t" ADD COLUMN "%s" TEXT`, added[i])
				if st != want {
					t.Fatalf("stmt[%d] = %q, want %q", i, st, want)
				}
			}
		})
	}
}

func TestInferKinds(t *testing.T) {
	t.Parallel()

	cols := []string{"n", "price", "flag", "day", "at", "note", "empty"}
	rows := [][]any{
		{"1", "1.5", "yes", "2026-10-16", "2026-10-16 08:00:00", "hello", nil},
		{"-7", "2", "no", "17.10.2026", "2026-10-16T09:00:00Z", "42", ""},
		{nil, "3e2", "Y", "2026/10/18", nil, "x"},
	}
	got := InferKinds(cols, rows)
	want := []string{KindInteger, KindReal, KindBoolean, KindDate, KindTimestamp, KindText, KindText}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("InferKinds mismatch (-want +got):\n%s", diff)
	}
}
