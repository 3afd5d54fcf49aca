package export_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bonscompte.example/bonscompte/calendar"
	"bonscompte.example/bonscompte/domain"
	"bonscompte.example/bonscompte/export"
	"bonscompte.example/bonscompte/money"
	"bonscompte.example/bonscompte/testutil"
)

func TestExportIncludesParticipantsPaymentsAndHistory(t *testing.T) {
	env := testutil.SetupTestEnvironment(t)
	defer env.TearDownDB()

	alice, berr := env.Store.CreateParticipant(env.ProjectID, domain.Participant{Name: "Alice", DefaultWeight: 1, Kind: domain.Person}, "tester", "corr-export-alice", time.Now())
	require.Nil(t, berr)
	bob, berr := env.Store.CreateParticipant(env.ProjectID, domain.Participant{Name: "Bob", DefaultWeight: 1, Kind: domain.Person}, "tester", "corr-export-bob", time.Now())
	require.Nil(t, berr)

	amount, corrected := money.FromFloat(42.50)
	require.False(t, corrected)
	draft := domain.Payment{
		Amount: amount, Description: "Dinner", Date: calendar.New(2026, time.July, 4),
		PayerID: alice.ID, AffectsBalance: true,
		Contributions: []domain.Contribution{{ParticipantID: alice.ID, Weight: 1}, {ParticipantID: bob.ID, Weight: 1}},
	}
	created, berr := env.Store.CreatePayment(env.ProjectID, draft, "tester", "corr-export-1", time.Now())
	require.Nil(t, berr)

	result, berr := export.Export(env.Store, env.ProjectID, time.Date(2026, 7, 10, 9, 0, 0, 0, time.UTC))
	require.Nil(t, berr)

	assert.Equal(t, env.ProjectID, result.ProjectID)
	assert.Equal(t, time.Date(2026, 7, 10, 9, 0, 0, 0, time.UTC), result.ExportedAt)
	assert.Len(t, result.Participants, 2)
	require.Len(t, result.Payments, 1)
	assert.Equal(t, created.ID, result.Payments[0].ID)
	assert.Equal(t, "Dinner", result.Payments[0].Description)
	assert.Len(t, result.Payments[0].Contributions, 2)
	require.NotEmpty(t, result.History)
	assert.Equal(t, "CREATE", result.History[len(result.History)-1].Action)
}

func TestExportUnknownProjectReturnsError(t *testing.T) {
	env := testutil.SetupTestEnvironment(t)
	defer env.TearDownDB()

	_, berr := export.Export(env.Store, "does-not-exist", time.Now())
	assert.NotNil(t, berr)
}
