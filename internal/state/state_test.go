package state

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRecord(t *testing.T) {
	record := Default()

	assert.Equal(t, 0, record.Iteration)
	assert.Nil(t, record.CreatedTokenAddress)
	assert.Nil(t, record.CurrentPoolID)
	assert.Nil(t, record.CurrentPositionID)
	assert.True(t, record.LiquidityWithdrawn)
	assert.Nil(t, record.WithdrawAt)
}

func TestCloneIsIndependent(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).Unix()
	original := &CycleRecord{
		Iteration:           3,
		CreatedTokenAddress: String("mint-3"),
		WithdrawAt:          &at,
	}

	clone := original.Clone()
	clone.Iteration = 4
	*clone.CreatedTokenAddress = "mutated"
	*clone.WithdrawAt = at + 3600

	assert.Equal(t, 3, original.Iteration)
	assert.Equal(t, "mint-3", *original.CreatedTokenAddress)
	assert.Equal(t, at, *original.WithdrawAt)
}

func TestRecordJSONFieldNames(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).Unix()
	record := &CycleRecord{
		Iteration:           7,
		CreatedTokenAddress: String("mint-7"),
		CurrentPoolID:       String("pool-7"),
		CurrentPositionID:   String("position-7"),
		LiquidityWithdrawn:  false,
		WithdrawAt:          &at,
	}

	data, err := json.Marshal(record)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))

	for _, key := range []string{
		"iteration",
		"createdTokenAddress",
		"currentPoolId",
		"currentPositionId",
		"liquidityWithdrawn",
		"withdrawAt",
	} {
		assert.Contains(t, raw, key)
	}
}

func TestDefaultRecordMarshalsNulls(t *testing.T) {
	data, err := json.Marshal(Default())
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"iteration": 0,
		"createdTokenAddress": null,
		"currentPoolId": null,
		"currentPositionId": null,
		"liquidityWithdrawn": true
	}`, string(data))
}

func TestFileStoreSeedsDefaultOnFirstRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot_state.json")
	store := NewFileStore(path)

	record, err := store.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, record.Iteration)
	assert.True(t, record.LiquidityWithdrawn)

	// The default must now be on disk so a restart sees the same state.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"iteration": 0`)
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot_state.json")
	store := NewFileStore(path)
	ctx := context.Background()

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).Unix()
	record := &CycleRecord{
		Iteration:           12,
		CreatedTokenAddress: String("mint-12"),
		CurrentPoolID:       String("pool-12"),
		CurrentPositionID:   String("position-12"),
		LiquidityWithdrawn:  false,
		WithdrawAt:          &at,
	}
	require.NoError(t, store.Write(ctx, record))

	loaded, err := store.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, record, loaded)
}

func TestFileStoreMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot_state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	store := NewFileStore(path)
	_, err := store.Read(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "parse state file")
}

func TestFileStoreWriteErrorType(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "missing-dir", "bot_state.json"))

	err := store.Write(context.Background(), Default())
	require.Error(t, err)

	var writeErr *WriteError
	assert.ErrorAs(t, err, &writeErr)
}

func TestMemoryStoreSeedsDefault(t *testing.T) {
	store := NewMemoryStore()

	record, err := store.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Default(), record)
}

func TestMemoryStoreCopiesOnReadAndWrite(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	record := &CycleRecord{Iteration: 5, CurrentPoolID: String("pool-5")}
	require.NoError(t, store.Write(ctx, record))
	record.Iteration = 99

	loaded, err := store.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, loaded.Iteration)

	*loaded.CurrentPoolID = "mutated"
	again, err := store.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "pool-5", *again.CurrentPoolID)
}
