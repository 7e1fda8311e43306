package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T, runner *fakeRunner, opts ...Option) *Repository {
	t.Helper()
	return New(NewSession(testConfig), NewInvoker(runner, t.TempDir(), 0), opts...)
}

func TestNewRequest(t *testing.T) {
	tests := []struct {
		op     Operation
		params []string
		want   Request
	}{
		{OperationStats, nil, Request{Subcommand: "stats", Args: []string{"--json"}, ExpectJSON: true}},
		{OperationSnapshots, nil, Request{Subcommand: "snapshots", Args: []string{"--json"}, ExpectJSON: true}},
		{OperationForget, []string{"abc"}, Request{Subcommand: "forget", Args: []string{"abc", "--prune"}}},
		{OperationRestore, []string{"abc", "/restore"}, Request{Subcommand: "restore", Args: []string{"abc", "--target", "/restore"}}},
	}

	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			assert.Equal(t, tt.want, NewRequest(tt.op, tt.params...))
		})
	}

	assert.Panics(t, func() { NewRequest("check") })
}

func TestRepositoryStats(t *testing.T) {
	runner := &fakeRunner{result: &Result{Succeeded: true, Stdout: []byte(`{"total_size": 12345, "total_file_count": 3}`)}}
	repo := newTestRepository(t, runner)

	v, err := repo.Stats(context.Background())
	require.NoError(t, err)

	b, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"total_size": 12345, "total_file_count": 3}`, string(b))

	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"stats", "--json"}, calls[0].args[4:])
}

func TestRepositorySnapshotsParseFailure(t *testing.T) {
	runner := &fakeRunner{result: &Result{Succeeded: true, Stdout: []byte("not-json")}}
	repo := newTestRepository(t, runner)

	_, err := repo.Snapshots(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindDecoding, KindOf(err))
	assert.Contains(t, err.Error(), "Failed to parse JSON")
}

func TestRepositoryForget(t *testing.T) {
	runner := &fakeRunner{}
	repo := newTestRepository(t, runner)

	require.NoError(t, repo.Forget(context.Background(), "abc123"))

	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"forget", "abc123", "--prune"}, calls[0].args[4:])
}

func TestRepositoryForgetBlankID(t *testing.T) {
	runner := &fakeRunner{}
	repo := newTestRepository(t, runner)

	err := repo.Forget(context.Background(), "  ")
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.Empty(t, runner.Calls())
}

func TestRepositoryToolFailure(t *testing.T) {
	runner := &fakeRunner{result: &Result{Succeeded: false, ExitCode: 1, Stderr: []byte("repository not found")}}
	repo := newTestRepository(t, runner)

	_, err := repo.Stats(context.Background())
	require.Error(t, err)
	assert.Equal(t, "Restic error: repository not found", err.Error())

	err = repo.Restore(context.Background(), RestoreRequest{SnapshotID: "abc", TargetDir: "/restore"})
	require.Error(t, err)
	assert.Equal(t, KindToolReported, KindOf(err))
}

func TestRepositoryRestore(t *testing.T) {
	runner := &fakeRunner{}
	repo := newTestRepository(t, runner)

	require.NoError(t, repo.Restore(context.Background(), RestoreRequest{SnapshotID: "abc123", TargetDir: "/restore/here"}))

	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"restore", "abc123", "--target", "/restore/here"}, calls[0].args[4:])
}

func TestRepositoryRestoreValidation(t *testing.T) {
	tests := []struct {
		name string
		req  RestoreRequest
		msg  string
	}{
		{"empty target", RestoreRequest{SnapshotID: "abc", TargetDir: ""}, "Target directory is required"},
		{"whitespace target", RestoreRequest{SnapshotID: "abc", TargetDir: " \t\n"}, "Target directory is required"},
		{"empty snapshot", RestoreRequest{SnapshotID: "", TargetDir: "/restore"}, "Snapshot ID is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			repo := newTestRepository(t, runner)

			err := repo.Restore(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, IsValidationError(err))
			assert.Equal(t, tt.msg, err.Error())
			assert.Empty(t, runner.Calls())
		})
	}
}

func TestRepositoryCache(t *testing.T) {
	runner := &fakeRunner{result: &Result{Succeeded: true, Stdout: []byte(`[]`)}}
	repo := newTestRepository(t, runner, WithCache(time.Minute))

	_, err := repo.Snapshots(context.Background())
	require.NoError(t, err)
	_, err = repo.Snapshots(context.Background())
	require.NoError(t, err)
	assert.Len(t, runner.Calls(), 1)

	require.NoError(t, repo.Forget(context.Background(), "abc"))
	_, err = repo.Snapshots(context.Background())
	require.NoError(t, err)
	assert.Len(t, runner.Calls(), 3)
}

func TestRepositoryCacheDisabled(t *testing.T) {
	runner := &fakeRunner{result: &Result{Succeeded: true, Stdout: []byte(`{}`)}}
	repo := newTestRepository(t, runner, WithCache(0))

	for i := 0; i < 3; i++ {
		_, err := repo.Stats(context.Background())
		require.NoError(t, err)
	}
	assert.Len(t, runner.Calls(), 3)
}

func TestRepositoryDoesNotCacheFailures(t *testing.T) {
	runner := &fakeRunner{result: &Result{Succeeded: false, Stderr: []byte("locked")}}
	repo := newTestRepository(t, runner, WithCache(time.Minute))

	_, err := repo.Stats(context.Background())
	require.Error(t, err)
	_, err = repo.Stats(context.Background())
	require.Error(t, err)
	assert.Len(t, runner.Calls(), 2)
}
