package config

import "context"

// Loader resolves layered configuration files plus overrides into a single
// configuration for one job.
type Loader interface {
	Resolve(ctx context.Context, overrides []Override) (*Resolved, error)
}

// Resolved is the configuration of one job: the full tree, its validated
// typed view and the overrides that produced it.
type Resolved struct {
	Tree      Tree
	Train     *Train
	Overrides []Override
}

// OverrideStrings renders the job's overrides in command-line form.
func (r *Resolved) OverrideStrings() []string {
	out := make([]string, 0, len(r.Overrides))
	for _, o := range r.Overrides {
		out = append(out, o.String())
	}
	return out
}
