package core

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount Money
}

// SpendingSummary is the month/account-filtered spending aggregate.
// Uncategorized holds the total of transactions without a category;
// it is reported as its own bucket only when non-zero.
type SpendingSummary struct {
	Month         MonthKey
	ByCategory    []CategoryAmount
	Uncategorized Money
}

// ChartLabels returns the label series for the charting collaborator.
func (s SpendingSummary) ChartLabels() []string {
	labels := make([]string, 0, len(s.ByCategory)+1)
	for _, c := range s.ByCategory {
		labels = append(labels, c.Name)
	}
	if s.Uncategorized.Cents > 0 {
		labels = append(labels, "Uncategorized")
	}
	return labels
}

// ChartValues returns the value series, in whole currency units,
// positionally matching ChartLabels.
func (s SpendingSummary) ChartValues() []float64 {
	values := make([]float64, 0, len(s.ByCategory)+1)
	for _, c := range s.ByCategory {
		values = append(values, c.Amount.Units())
	}
	if s.Uncategorized.Cents > 0 {
		values = append(values, s.Uncategorized.Units())
	}
	return values
}

// Total sums every bucket including the uncategorized one.
func (s SpendingSummary) Total() Money {
	total := s.Uncategorized.Cents
	for _, c := range s.ByCategory {
		total += c.Amount.Cents
	}
	return Money{Cents: total}
}
