package core

import "strings"

// categoryKeywords maps vendor keywords to a category name. Matching is
// ordered so that a description hitting keywords of two categories
// always resolves the same way.
var categoryKeywords = []struct {
	Category string
	Keywords []string
}{
	{"Food & Drink", []string{
		"zomato", "swiggy", "mcdonalds", "mcd", "starbucks", "cafe coffee day", "ccd",
		"dominos", "pizza hut", "eatsure", "burger king", "kfc", "subway", "dunkin",
	}},
	{"Groceries", []string{
		"bigbasket", "big basket", "blinkit", "zepto", "grofers", "jiomart", "dmart",
		"reliance fresh", "spencers", "nature basket", "star bazaar", "pharmacy", "pharmeasy",
	}},
	{"Fuel", []string{
		"indian oil", "ioc", "hpcl", "hindustan petroleum", "bharat petroleum", "bpcl",
		"shell", "essar", "reliance petroleum", "petrol", "diesel", "fuel",
	}},
	{"Subscriptions", []string{
		"netflix", "spotify", "prime video", "amazon prime", "hotstar", "disney",
		"jiocinema", "sonyliv", "zee5", "apple music", "youtube premium", "voot",
		"gym membership", "mobile recharge",
	}},
	{"Utilities", []string{
		"bses", "tata power", "bescom", "adani electricity", "airtel", "jio", "vodafone",
		"bsnl", "mtnl", "electricity", "water bill", "gas bill", "internet bill",
		"piped gas", "indraprastha gas", "mahanagar gas",
	}},
	{"Transport", []string{
		"ola", "uber", "rapido", "redbus", "irctc", "metro", "makemytrip", "goibibo", "yatra",
	}},
	{"Shopping", []string{
		"amazon", "flipkart", "myntra", "meesho", "ajio", "nykaa", "reliance digital",
		"croma", "vijay sales", "lifestyle", "westside", "max fashion", "pantaloons",
		"bookmyshow", "pvr", "airbnb",
	}},
	{"Payments", []string{
		"paytm", "phonepe", "gpay", "google pay", "bhim", "upi", "mobikwik",
	}},
	{"Rent/EMI", []string{
		"rent", "emi", "housing loan", "home loan", "hdfc", "icici", "sbi", "axis",
	}},
}

// DefaultCategories is the taxonomy seeded by migration: every keyword
// target plus the fallback buckets.
func DefaultCategories() []string {
	names := make([]string, 0, len(categoryKeywords)+3)
	for _, c := range categoryKeywords {
		names = append(names, c.Category)
	}
	return append(names, "Uncategorized", "Other", "Income")
}

// CategorizeDescription finds the category name for a transaction
// description by case-insensitive keyword match. The second return is
// false when no keyword matches and the transaction should stay
// uncategorized.
func CategorizeDescription(description string) (string, bool) {
	lower := strings.ToLower(description)
	for _, c := range categoryKeywords {
		for _, kw := range c.Keywords {
			if strings.Contains(lower, kw) {
				return c.Category, true
			}
		}
	}
	return "", false
}
