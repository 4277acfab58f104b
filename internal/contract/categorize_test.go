package contract

import "testing"

func TestCategorize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		question string
		want     string
	}{
		{"Will Bitcoin close above $100k?", "crypto"},
		{"Will ETH flip BTC this cycle?", "crypto"},
		{"Will the Fed cut rates in March?", "finance"},
		{"Will inflation stay under 3%?", "finance"},
		{"Will there be a ceasefire by June?", "politics"},
		{"Who wins the presidential election?", "politics"},
		{"Will the Chiefs win the Superbowl?", "sports"},
		{"Will it rain tomorrow?", "other"},
		{"", "other"},
	}
	for _, tc := range cases {
		if got := Categorize(tc.question); got != tc.want {
			t.Errorf("Categorize(%q) = %q, want %q", tc.question, got, tc.want)
		}
	}
}

func TestCategorizeFirstGroupWins(t *testing.T) {
	t.Parallel()

	// "bitcoin" (crypto) and "market" (finance) both present; crypto is
	// earlier in the table.
	if got := Categorize("Will the bitcoin market crash?"); got != "crypto" {
		t.Errorf("Categorize = %q, want crypto (first matching group)", got)
	}
}
