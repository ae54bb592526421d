package env

import "testing"

func TestGetFallsBackOnBlank(t *testing.T) {
	t.Setenv("ORDERFLOW_TEST_VALUE", "   ")
	if got := Get("ORDERFLOW_TEST_VALUE", "json"); got != "json" {
		t.Fatalf("expected fallback, got %q", got)
	}
	t.Setenv("ORDERFLOW_TEST_VALUE", " console ")
	if got := Get("ORDERFLOW_TEST_VALUE", "json"); got != "console" {
		t.Fatalf("expected trimmed value, got %q", got)
	}
}
