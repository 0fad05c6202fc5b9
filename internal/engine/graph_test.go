package engine

import (
	"errors"
	"testing"

	"github.com/picklr-io/craftstack/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vpc(name string, deps ...string) *ir.Resource {
	return &ir.Resource{Name: name, Props: &ir.VpcProps{CidrBlock: "10.0.0.0/16"}, DependsOn: deps}
}

func subnet(name, vpcName string) *ir.Resource {
	return &ir.Resource{Name: name, Props: &ir.SubnetProps{VpcID: ir.IDOf(vpcName), CidrBlock: "10.0.48.0/20"}}
}

func TestBuildDAG_NoDependencies(t *testing.T) {
	d := &ir.Deployment{Resources: []*ir.Resource{vpc("a"), vpc("b"), vpc("c")}}

	dag, err := BuildDAG(d)
	require.NoError(t, err)

	// Independent resources keep declaration order.
	assert.Equal(t, []string{"a", "b", "c"}, dag.CreationOrder())
}

func TestBuildDAG_ExplicitDependsOn(t *testing.T) {
	d := &ir.Deployment{Resources: []*ir.Resource{
		vpc("a", "b"),
		vpc("b"),
		vpc("c", "a"),
	}}

	dag, err := BuildDAG(d)
	require.NoError(t, err)

	order := dag.CreationOrder()
	require.Len(t, order, 3)

	posB := indexOf(order, "b")
	posA := indexOf(order, "a")
	posC := indexOf(order, "c")

	assert.Less(t, posB, posA, "b should come before a")
	assert.Less(t, posA, posC, "a should come before c")
}

func TestBuildDAG_ImplicitRef(t *testing.T) {
	d := &ir.Deployment{Resources: []*ir.Resource{
		subnet("my-subnet", "my-vpc"),
		vpc("my-vpc"),
	}}

	dag, err := BuildDAG(d)
	require.NoError(t, err)

	order := dag.CreationOrder()
	require.Len(t, order, 2)
	assert.Less(t, indexOf(order, "my-vpc"), indexOf(order, "my-subnet"), "VPC should be created before subnet")
}

func TestBuildDAG_CycleDetection(t *testing.T) {
	d := &ir.Deployment{Resources: []*ir.Resource{
		vpc("a", "b"),
		vpc("b", "a"),
	}}

	_, err := BuildDAG(d)
	var resErr *ir.ResolutionError
	require.True(t, errors.As(err, &resErr))
	assert.Contains(t, err.Error(), "cycle")
}

func TestBuildDAG_DanglingReference(t *testing.T) {
	d := &ir.Deployment{Resources: []*ir.Resource{subnet("s", "ghost")}}

	_, err := BuildDAG(d)
	var resErr *ir.ResolutionError
	require.True(t, errors.As(err, &resErr))
	assert.Equal(t, "s", resErr.Resource)
	assert.Equal(t, "ghost", resErr.Ref)
}

func TestBuildDAG_DuplicateName(t *testing.T) {
	d := &ir.Deployment{Resources: []*ir.Resource{vpc("a"), vpc("a")}}

	_, err := BuildDAG(d)
	var resErr *ir.ResolutionError
	assert.True(t, errors.As(err, &resErr))
}

func TestBuildDAG_DestructionOrder(t *testing.T) {
	d := &ir.Deployment{Resources: []*ir.Resource{
		vpc("a", "b"),
		vpc("b"),
	}}

	dag, err := BuildDAG(d)
	require.NoError(t, err)

	revOrder := dag.DestructionOrder()
	require.Len(t, revOrder, 2)

	// a depends on b, so a should be destroyed first (reverse of creation)
	assert.Less(t, indexOf(revOrder, "a"), indexOf(revOrder, "b"), "a should be destroyed before b")
}

func TestDependencies(t *testing.T) {
	d := &ir.Deployment{Resources: []*ir.Resource{
		vpc("a", "b", "c"),
		vpc("b"),
		vpc("c", "b"),
	}}

	dag, err := BuildDAG(d)
	require.NoError(t, err)

	deps := dag.Dependencies("a")
	assert.ElementsMatch(t, []string{"b", "c"}, deps)
	assert.ElementsMatch(t, []string{"a", "c"}, dag.Dependents("b"))
	assert.ElementsMatch(t, []string{"b", "c"}, dag.TransitiveDeps("a"))
	assert.Empty(t, dag.TransitiveDeps("b"))
	assert.Nil(t, dag.Resource("missing"))
}

func indexOf(slice []string, item string) int {
	for i, s := range slice {
		if s == item {
			return i
		}
	}
	return -1
}
