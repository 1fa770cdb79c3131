package sig_interpreter

// Duration interprets a DURATION span. Units share the frequency
// vocabulary, so "for 2 - 3 months" → 2, 3, "Month".
func (in *Interpreter) Duration(text string, diags *Diagnostics) Result {
	durType := in.FrequencyType(text, diags)
	lo, hi := in.ExtractRange(text, nil, diags)
	if lo == nil {
		n := in.NumberOfTimes(text, nil)
		lo, hi = n, copyPtr(n)
	}
	if lo == nil {
		lo, hi = oneOrTwoNumbers(text)
	}
	if lo == nil {
		lo, hi = ptr(1), ptr(1)
	}
	return Result{Min: lo, Max: hi, Type: durType}
}
