package framework

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAggregatedError(t *testing.T) {
	var errs AggregatedError
	require.NoError(t, errs.Add(nil, nil).Aggregate())

	errA, errB := errors.New("a"), errors.New("b")
	err := errs.Add(errA).Aggregate()
	require.EqualError(t, err, "a")
	errs.Add(nil, errB)
	require.EqualError(t, errs.Aggregate(), "multiple errors:\n  a\n  b")
	require.ErrorIs(t, errs.Aggregate(), errB)
}

func TestRunner(t *testing.T) {
	boom := errors.New("boom")
	r := NewRunner()
	r.Go(
		NamedRun("waiter", RunFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})),
		RunFunc(func(context.Context) error { return boom }),
	)
	err := r.Wait()
	require.ErrorIs(t, err, boom)
	require.Len(t, r.Runners, 2)
	require.Equal(t, "waiter", r.Runners[0].(Named).Name())
}

func TestRunnerStop(t *testing.T) {
	r := NewRunner()
	r.Go(RunFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	r.Stop()
	require.NoError(t, r.Wait())
}
