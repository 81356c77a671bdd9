package wavm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wavmgo/wavm/api"
)

func TestHostModuleBuilder_exportsCallableFunction(t *testing.T) {
	ctx := context.Background()
	r := NewRuntime(ctx).(*wavmRuntime)

	var got []uint64
	_, err := r.NewHostModuleBuilder("env").
		NewFunctionBuilder().
		WithFunc([]api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32},
			func(_ context.Context, params []uint64) ([]uint64, error) {
				got = params
				return []uint64{params[0] + params[1]}, nil
			}).
		Export("add").
		Instantiate(ctx)
	require.NoError(t, err)

	fns, ok := r.hostModules["env"]
	require.True(t, ok)
	fn, ok := fns["add"]
	require.True(t, ok)

	results, err := fn.Call(ctx, nil, []uint64{2, 3})
	require.NoError(t, err)
	require.Equal(t, []uint64{5}, results)
	require.Equal(t, []uint64{2, 3}, got)
}

func TestHostModuleBuilder_instantiateTwiceFails(t *testing.T) {
	ctx := context.Background()
	r := NewRuntime(ctx).(*wavmRuntime)

	builder := func() HostModuleBuilder {
		return r.NewHostModuleBuilder("dup").
			NewFunctionBuilder().
			WithFunc(nil, nil, func(context.Context, []uint64) ([]uint64, error) { return nil, nil }).
			Export("noop")
	}

	_, err := builder().Instantiate(ctx)
	require.NoError(t, err)

	_, err = builder().Instantiate(ctx)
	require.Error(t, err)
}

func TestHostModuleAdapter_exportedFunction(t *testing.T) {
	ctx := context.Background()
	r := NewRuntime(ctx).(*wavmRuntime)

	mod, err := r.NewHostModuleBuilder("env").
		NewFunctionBuilder().
		WithFunc(nil, []api.ValueType{api.ValueTypeI32}, func(context.Context, []uint64) ([]uint64, error) {
			return []uint64{42}, nil
		}).
		Export("answer").
		Instantiate(ctx)
	require.NoError(t, err)

	fn := mod.ExportedFunction("answer")
	require.NotNil(t, fn)
	results, err := fn.Call(ctx)
	require.NoError(t, err)
	require.Equal(t, []uint64{42}, results)

	require.Nil(t, mod.ExportedFunction("missing"))
	require.Nil(t, mod.Memory())
}
