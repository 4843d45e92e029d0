package audit

// Counter is a per syscall budget. A counted syscall is permitted until
// its budget runs out.
type Counter map[string]int

// NewCounter creates an empty counter
func NewCounter() Counter {
	return make(Counter)
}

// Add sets the budget of name
func (c Counter) Add(name string, count int) {
	c[name] = count
}

// AddRange sets multiple budgets
func (c Counter) AddRange(m map[string]int) {
	for k, v := range m {
		c[k] = v
	}
}

// Check consumes one call of name. It returns whether name is counted
// and, if so, whether the call is within budget.
func (c Counter) Check(name string) (counted, allow bool) {
	n, ok := c[name]
	if !ok {
		return false, true
	}
	if n <= 0 {
		return true, false
	}
	c[name] = n - 1
	return true, true
}
