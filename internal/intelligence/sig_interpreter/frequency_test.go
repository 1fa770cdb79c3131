package sig_interpreter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrequencyType(t *testing.T) {
	in := New(nil)
	tests := []struct {
		text string
		want *string
	}{
		{"daily", s("Day")},
		{"nocte", s("Day")},
		{"every hr", s("Hour")},
		{"fortnightly", s("2 Week")},
		{"every 3 days", s("3 Day")},
		{"wk", s("Week")},
		{"with breakfast", s("Day")},
		{"on mon", nil},
		{"qid", s("Day")},
		{"every 7 days", s("Week")},
		{"every 24 hours", s("Day")},
		{"every 48 hours", s("2 Day")},
		{"every 14 days", s("2 Week")},
		{"every 4 weeks", s("Month")},
		{"2h", s("Hour")},
		{"yearly", s("Year")},
		{"monthly", s("Month")},
		{"alternate days", s("2 Day")},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, in.FrequencyType(tt.text, nil), tt.text)
	}
}

func TestAddMultipleUnits(t *testing.T) {
	in := New(nil)
	tests := []struct {
		text     string
		freqType string
		want     string
	}{
		{"every 6 hours", "Hour", "6 Hour"},
		{"alternate days", "Day", "2 Day"},
		{"every hr", "Hour", "Hour"},
		{"every other week", "Week", "2 Week"},
		{"every sixth day", "Day", "6 Day"},
		{"every 2 - 3 days", "Day", "2 Day"},
		{"every 10 or 6 days", "Day", "6 Day"},
		{"4 hrly", "Hour", "4 Hour"},
	}
	for _, tt := range tests {
		got := in.addMultipleUnits(tt.text, s(tt.freqType), nil)
		if assert.NotNil(t, got, tt.text) {
			assert.Equal(t, tt.want, *got, tt.text)
		}
	}
	assert.Nil(t, in.addMultipleUnits("every other", nil, nil))
}

func TestAddMultipleUnits_WarnsOnSeveralNumbers(t *testing.T) {
	d := NewDiagnostics()
	New(nil).addMultipleUnits("every 2 - 3 days", s("Day"), d)
	assert.Equal(t, 1, d.Len())
	assert.Equal(t, "multiple-units", d.Entries()[0].Rule)
}

func TestNumberOfTimes(t *testing.T) {
	in := New(nil)
	tests := []struct {
		text string
		def  *float64
		want *float64
	}{
		{"daily", nil, f(1)},
		{"food", nil, f(3)},
		{"qid", nil, f(4)},
		{"lunch", nil, f(1)},
		{"nocte", nil, f(1)},
		{"3 times", nil, f(3)},
		{"at 8 am", nil, nil},
		{"at 8 am", f(0), f(0)},
		{"every other", nil, f(0.5)},
		{"with meals", nil, f(3)},
		{"hello", f(7), f(7)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, in.NumberOfTimes(tt.text, tt.def), tt.text)
	}
}

func TestHourlyAdjusted(t *testing.T) {
	in := New(nil)
	tests := []struct {
		text string
		want Result
	}{
		{"6 hourly", Result{f(1), f(1), s("6 Hour")}},
		{"3 hrly", Result{f(1), f(1), s("3 Hour")}},
		{"4 hrly or 5 hrly", Result{f(1), f(1), s("4 Hour")}},
	}
	for _, tt := range tests {
		lo, hi, typ := in.hourlyAdjusted(tt.text, nil)
		assertResult(t, tt.want, Result{lo, hi, typ}, tt.text)
	}
}

func TestHourlyAdjusted_WarnsOnRepeatedToken(t *testing.T) {
	d := NewDiagnostics()
	New(nil).hourlyAdjusted("4 hrly or 5 hrly", d)
	var rules []string
	for _, e := range d.Entries() {
		rules = append(rules, e.Rule)
	}
	assert.Contains(t, rules, "hourly")
}

func TestFrequency(t *testing.T) {
	in := New(nil)
	tests := []struct {
		text string
		want Result
	}{
		{"daily", Result{f(1), f(1), s("Day")}},
		{"with meals and at bedtime", Result{f(4), f(4), s("Day")}},
		{"2 to 5 times a week", Result{f(2), f(5), s("Week")}},
		{"1 or 2 times every 4 weeks", Result{f(1), f(2), s("Month")}},
		{"6 hrly", Result{f(1), f(1), s("6 Hour")}},
		{"6 hourly", Result{f(1), f(1), s("6 Hour")}},
		{"3 times", Result{f(3), f(3), nil}},
		{"3 4 5 times", Result{f(3), f(5), nil}},
		{"hello", Result{f(1), f(1), nil}},
		{"2 times daily", Result{f(2), f(2), s("Day")}},
		{"morning and night", Result{f(2), f(2), s("Day")}},
		{"after meals and at night time", Result{f(4), f(4), s("Day")}},
		{"bd", Result{f(2), f(2), s("Day")}},
		{"every day", Result{f(1), f(1), s("Day")}},
		{"8 am and 6 pm", Result{f(2), f(2), s("Day")}},
	}
	for _, tt := range tests {
		assertResult(t, tt.want, in.Frequency(tt.text, nil), tt.text)
	}
}
