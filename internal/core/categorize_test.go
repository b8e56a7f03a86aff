package core

import "testing"

func TestCategorizeDescription(t *testing.T) {
	cases := []struct {
		desc string
		want string
		ok   bool
	}{
		{"Payment to Zomato", "Food & Drink", true},
		{"Payment to SWIGGY online", "Food & Drink", true},
		{"Blinkit order 1234", "Groceries", true},
		{"UPI transfer", "Payments", true},
		{"Netflix subscription", "Subscriptions", true},
		{"Rent Payment", "Rent/EMI", true},
		{"Transfer to Friend", "", false},
		{"ATM Withdrawal", "", false},
	}
	for i, tc := range cases {
		got, ok := CategorizeDescription(tc.desc)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("case %d (%q): got %q/%v, want %q/%v", i, tc.desc, got, ok, tc.want, tc.ok)
		}
	}
}

func TestDefaultCategoriesContainKeywordTargets(t *testing.T) {
	names := DefaultCategories()
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if seen[n] {
			t.Fatalf("duplicate category %q", n)
		}
		seen[n] = true
	}
	for _, required := range []string{"Food & Drink", "Groceries", "Uncategorized", "Other", "Income"} {
		if !seen[required] {
			t.Fatalf("missing category %q", required)
		}
	}
}
