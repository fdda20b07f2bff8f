package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payments/internal/domain"
	"payments/internal/repository/bolt"
)

func seedLedger(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "ledger.db")
	store, err := bolt.Open(path)
	require.NoError(t, err)

	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	amount := func(v string) domain.Money {
		return domain.NewMoney(decimal.RequireFromString(v), "CAD")
	}

	events := []*domain.PaymentEvent{
		{ID: "r1", Type: domain.EventTypeReserve, Status: domain.EventStatusApproved, Amount: amount("100"),
			InstrumentID: "gc-1", OriginalInstrument: true, PlannedSteps: 1, ReferenceID: "order-1", CreatedAt: created},
		{ID: "c1", ParentID: "r1", Type: domain.EventTypeCharge, Status: domain.EventStatusApproved, Amount: amount("70"),
			InstrumentID: "gc-1", ReferenceID: "order-1", CreatedAt: created.Add(time.Minute)},
		{ID: "x1", ParentID: "c1", Type: domain.EventTypeCredit, Status: domain.EventStatusApproved, Amount: amount("10"),
			InstrumentID: "gc-1", ReferenceID: "order-1", CreatedAt: created.Add(2 * time.Minute)},
	}
	for _, e := range events {
		require.NoError(t, store.Events().Append(context.Background(), e))
	}
	require.NoError(t, store.Close())

	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func TestEventsCommand_Table(t *testing.T) {
	path := seedLedger(t)

	out, err := run(t, "--driver", "bolt", "--bolt-path", path, "events", "order-1")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "RESERVE")
	assert.Contains(t, lines[1], "100 CAD")
	assert.Contains(t, lines[2], "CHARGE")
	assert.Contains(t, lines[3], "CREDIT")
}

func TestEventsCommand_JSON(t *testing.T) {
	path := seedLedger(t)

	out, err := run(t, "--driver", "bolt", "--bolt-path", path, "events", "order-1", "--json")
	require.NoError(t, err)

	var events []struct {
		ID       string
		ParentID string
		Type     string
	}
	require.NoError(t, json.Unmarshal([]byte(out), &events))
	require.Len(t, events, 3)
	assert.Equal(t, "x1", events[2].ID)
	assert.Equal(t, "c1", events[2].ParentID)
}

func TestSummaryCommand(t *testing.T) {
	path := seedLedger(t)

	out, err := run(t, "--driver", "bolt", "--bolt-path", path, "summary", "order-1", "-c", "CAD")
	require.NoError(t, err)

	assert.Regexp(t, `Charged:\s+70\n`, out)
	assert.Regexp(t, `Refunded:\s+10\n`, out)
	assert.Regexp(t, `Net:\s+60\n`, out)
	assert.Regexp(t, `Events:\s+3\n`, out)
}

func TestSummaryCommand_UnknownReference(t *testing.T) {
	path := seedLedger(t)

	out, err := run(t, "--driver", "bolt", "--bolt-path", path, "summary", "order-404")
	require.NoError(t, err)

	assert.Regexp(t, `Currency:\s+-\n`, out)
	assert.Regexp(t, `Events:\s+0\n`, out)
}

func TestStatementCommand(t *testing.T) {
	path := seedLedger(t)

	out, err := run(t, "--driver", "bolt", "--bolt-path", path, "statement", "order-1")
	require.NoError(t, err)

	assert.Contains(t, out, "Reference: order-1")
	assert.Contains(t, out, "gc-1")
	assert.Contains(t, out, "Chargeable: 30.00 CAD")
	assert.Contains(t, out, "NET:      60.00 CAD")
}

func TestRootCommand_RejectsUnknownDriver(t *testing.T) {
	_, err := run(t, "--driver", "sqlite", "events", "order-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown storage driver")
}

func TestEventsCommand_RequiresReference(t *testing.T) {
	_, err := run(t, "--driver", "bolt", "events")
	assert.Error(t, err)
}
