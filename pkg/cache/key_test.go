package cache

import "testing"

func TestKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  Key
		want string
	}{
		{
			name: "series",
			key:  SeriesKey("AAPL", "1D"),
			want: "series:AAPL:1D",
		},
		{
			name: "symbol is normalized",
			key:  SeriesKey("  msft ", "3M"),
			want: "series:MSFT:3M",
		},
		{
			name: "predictions with model version",
			key:  PredictionsKey("aapl", "v1"),
			want: "predictions:AAPL:v1",
		},
		{
			name: "ticker has no params",
			key:  TickerKey("tsla"),
			want: "ticker:TSLA",
		},
		{
			name: "separator in param is escaped",
			key:  Key{Resource: "series", Symbol: "AAPL", Params: []string{"a:b"}},
			want: "series:AAPL:a_b",
		},
		{
			name: "empty params skipped",
			key:  Key{Resource: "Series", Symbol: "AAPL", Params: []string{"", "1D"}},
			want: "series:AAPL:1D",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKey_Deterministic(t *testing.T) {
	k := Key{Resource: ResourceSeries, Symbol: "AAPL", Params: []string{"1D", "extra"}}
	first := k.String()
	for i := 0; i < 50; i++ {
		if got := k.String(); got != first {
			t.Fatalf("String() not deterministic: %q vs %q", got, first)
		}
	}
}

func TestKey_ParamOrderMatters(t *testing.T) {
	a := Key{Resource: "series", Symbol: "AAPL", Params: []string{"1D", "v1"}}.String()
	b := Key{Resource: "series", Symbol: "AAPL", Params: []string{"v1", "1D"}}.String()
	if a == b {
		t.Errorf("keys with different param order should differ, both %q", a)
	}
}
