package fourkind_test

import (
	"math/rand/v2"
	"testing"

	"fourkind-server/internal/fourkind"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyPass(t *testing.T) {
	assert := assert.New(t)

	start := scenarioState()
	before := start.Clone()

	next := fourkind.ApplyPass(start, fourkind.Two)

	assert.Equal(before, start, "the input state must not change")
	assert.Equal(3, next.TurnIndex)
	assert.Equal(2, next.LastSender)
	assert.Equal(3, next.LastReceiver)
	require.NotNil(t, next.LastPassed)
	assert.Equal(fourkind.Two, *next.LastPassed)
	require.NotNil(t, next.Seats[3].LastReceived)
	assert.Equal(fourkind.Two, *next.Seats[3].LastReceived)
	assert.Equal(hand("0134"), next.Seats[2].Hand)
	assert.Equal(hand("11342"), next.Seats[3].Hand)
	assert.Equal(1, next.Moves)
	assert.Equal(fourkind.StatusRunning, next.Status)
	assert.Equal(fourkind.DeckSize, totalCards(next))
	assert.NoError(next.CheckIntegrity())
}

func TestWinDetection(t *testing.T) {
	tests := []struct {
		name   string
		hands  [fourkind.NumPlayers]string
		status fourkind.Status
		winner int
	}{
		{
			name:   "fourth copy wins",
			hands:  [fourkind.NumPlayers]string{"02113", "2224", "1334", "1344"},
			status: fourkind.StatusCompleted,
			winner: 1,
		},
		{
			name:   "third copy keeps playing",
			hands:  [fourkind.NumPlayers]string{"02113", "2244", "1334", "1234"},
			status: fourkind.StatusRunning,
			winner: -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := newState(0, tt.hands)
			require.NoError(t, state.CheckIntegrity())

			next, err := fourkind.Pass(state, "A", fourkind.Two)
			require.NoError(t, err)
			assert.Equal(t, tt.status, next.Status)
			assert.Equal(t, tt.winner, next.Winner)
			assert.NoError(t, next.CheckIntegrity())

			if tt.status == fourkind.StatusCompleted {
				winner, ok := next.WinnerPlayer()
				require.True(t, ok)
				assert.Equal(t, "B", winner.ID)
				rank, ok := next.CollectedRank()
				require.True(t, ok)
				assert.Equal(t, fourkind.Two, rank)

				_, err = fourkind.Pass(next, "B", fourkind.Four)
				assert.ErrorIs(t, err, fourkind.ErrGameOver)
			}
		})
	}
}

func TestRejectedPassKeepsState(t *testing.T) {
	start := scenarioState()

	next, err := fourkind.Pass(start, "A", fourkind.One)
	assert.ErrorIs(t, err, fourkind.ErrNotYourTurn)
	assert.Equal(t, start, next)
	assert.Equal(t, 2, next.TurnIndex)
}

func TestScenario(t *testing.T) {
	state := scenarioState()
	require.Equal(t, 2, state.TurnIndex)
	require.Len(t, state.Seats[2].Hand, 5)

	state, err := fourkind.Pass(state, "C", fourkind.Two)
	require.NoError(t, err)
	assert.Equal(t, 3, state.TurnIndex)
	assert.Equal(t, fourkind.Two, *state.Seats[3].LastReceived)
	assert.Len(t, state.Seats[2].Hand, 4)

	rejected, err := fourkind.Pass(state, "D", fourkind.Two)
	assert.ErrorIs(t, err, fourkind.ErrCannotBounceBack)
	assert.Equal(t, state, rejected)

	state, err = fourkind.Pass(state, "D", fourkind.One)
	require.NoError(t, err)
	assert.Equal(t, 0, state.TurnIndex)

	// Play on with random legal passes until somebody collects four.
	rng := rand.New(rand.NewPCG(42, 1))
	for range 100000 {
		if state.Status == fourkind.StatusCompleted {
			break
		}
		legal := fourkind.LegalCards(state)
		require.NotEmpty(t, legal)
		card := legal[rng.IntN(len(legal))]
		prevTurn := state.TurnIndex

		state, err = fourkind.Pass(state, state.CurrentPlayer().ID, card)
		require.NoError(t, err)
		assert.Equal(t, (prevTurn+1)%fourkind.NumPlayers, state.TurnIndex)
		assert.Equal(t, fourkind.DeckSize, totalCards(state))
	}

	require.Equal(t, fourkind.StatusCompleted, state.Status)
	assert.Equal(t, state.LastReceiver, state.Winner)
	_, ok := state.Seats[state.Winner].Hand.FourOfAKind()
	assert.True(t, ok)
	assert.NoError(t, state.CheckIntegrity())
}

func TestRandomGamesKeepInvariants(t *testing.T) {
	for seed := range uint64(20) {
		rng := rand.New(rand.NewPCG(seed, 99))
		state, err := fourkind.NewDealer(rng, 0).Deal(players)
		require.NoError(t, err)

		for state.Status == fourkind.StatusRunning && state.Moves < 100000 {
			card, ok := fourkind.ChooseCard(state)
			require.True(t, ok)
			if rng.IntN(2) == 0 {
				legal := fourkind.LegalCards(state)
				card = legal[rng.IntN(len(legal))]
			}
			state, err = fourkind.Pass(state, state.CurrentPlayer().ID, card)
			require.NoError(t, err)
			require.NoError(t, state.CheckIntegrity(), "seed %d move %d", seed, state.Moves)
		}
		assert.Equal(t, fourkind.StatusCompleted, state.Status, "seed %d", seed)
	}
}
