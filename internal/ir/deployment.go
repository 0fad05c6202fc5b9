package ir

// Deployment is the explicit graph produced by a declaration set.
type Deployment struct {
	Stack     string
	Resources []*Resource // declaration order
	Outputs   []*Output   // export order
}

// Output is a named value exported after evaluation.
type Output struct {
	Name  string
	Value Value
}

// Lookup returns the resource declared under name.
func (d *Deployment) Lookup(name string) (*Resource, bool) {
	for _, res := range d.Resources {
		if res.Name == name {
			return res, true
		}
	}
	return nil, false
}
