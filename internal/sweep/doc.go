// Package sweep turns command-line overrides into jobs. A key may take
// several values (a comma list, range() or choice()); in multirun mode the
// Cartesian product of all keys yields one job per combination.
package sweep
