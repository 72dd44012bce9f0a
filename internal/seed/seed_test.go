package seed

import (
	"fmt"
	"strings"
	"testing"

	"github.com/ZJUSCT/CFBingo/internal/auth"
	"github.com/ZJUSCT/CFBingo/internal/config"
	"github.com/ZJUSCT/CFBingo/internal/database"
	"github.com/ZJUSCT/CFBingo/internal/database/models"
	"github.com/ZJUSCT/CFBingo/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleYAML() string {
	var b strings.Builder
	b.WriteString(`teams:
  - name: Red
    password: red-pass
    handle: alice
    members: [alice, anna]
    round2: true
  - name: Blue
    password: blue-pass
    members: [bob]
    round2: true
questions:
`)
	for i := 0; i < 9; i++ {
		fmt.Fprintf(&b, "  - {contest: \"1900\", index: %c, name: P%d}\n", 'A'+i, i)
	}
	b.WriteString(`pools:
  - round: 1
    side: a
    problems:
      - {contest: "1000", index: A}
      - {contest: "1000", index: B}
  - round: 1
    side: B
    problems:
      - {contest: "2000", index: A}
matches:
  - id: qf
    round: 1
    side_a: [Red]
    side_b: [Blue]
`)
	return b.String()
}

func TestParseValidates(t *testing.T) {
	f, err := Parse([]byte(sampleYAML()))
	require.NoError(t, err)
	assert.Len(t, f.Teams, 2)
	assert.Len(t, f.Questions, 9)

	_, err = Parse([]byte("questions:\n  - {contest: \"1\", index: A}\n"))
	assert.ErrorContains(t, err, "exactly 9")

	_, err = Parse([]byte("teams:\n  - name: Red\n  - name: Red\n"))
	assert.ErrorContains(t, err, "duplicate team")

	_, err = Parse([]byte("matches:\n  - round: 1\n    side_a: [Ghost]\n"))
	assert.ErrorContains(t, err, "unknown team")

	_, err = Parse([]byte("pools:\n  - round: 1\n    side: C\n"))
	assert.ErrorContains(t, err, "invalid side")
}

func TestApply(t *testing.T) {
	db := testutils.NewDB(t)
	f, err := Parse([]byte(sampleYAML()))
	require.NoError(t, err)

	sum, err := Apply(db, f, config.Default().Round2)
	require.NoError(t, err)
	assert.Equal(t, &Summary{Teams: 2, Questions: 9, Pools: 3, Matches: 1}, sum)

	red, err := database.GetTeamByName(db, "Red")
	require.NoError(t, err)
	assert.Equal(t, "alice", red.CodeforcesHandle)
	assert.Equal(t, models.StringList{"alice", "anna"}, red.Members)
	assert.True(t, auth.CheckPassword(red.PasswordHash, "red-pass"))

	blue, err := database.GetTeamByName(db, "Blue")
	require.NoError(t, err)
	assert.Equal(t, "bob", blue.CodeforcesHandle)

	pool, err := database.GetPool(db, 1, models.SideA)
	require.NoError(t, err)
	assert.Len(t, pool, 2)

	m, err := database.GetMatch(db, "qf")
	require.NoError(t, err)
	assert.Equal(t, models.MatchWaiting, m.Status)
	assert.Equal(t, 50, m.ScoreA)
	assert.Equal(t, 2700, m.Duration)
	assert.Equal(t, models.StringList{red.ID}, m.SideATeamIDs)
	assert.Equal(t, models.StringList{"alice", "anna"}, m.SideAHandles)
	assert.Equal(t, models.StringList{"bob"}, m.SideBHandles)
}

func TestApplyTwiceKeepsIdentity(t *testing.T) {
	db := testutils.NewDB(t)
	f, err := Parse([]byte(sampleYAML()))
	require.NoError(t, err)
	_, err = Apply(db, f, config.Default().Round2)
	require.NoError(t, err)
	before, err := database.GetTeamByName(db, "Red")
	require.NoError(t, err)

	f.Teams[0].Password = ""
	f.Teams[0].Round2 = false
	_, err = Apply(db, f, config.Default().Round2)
	require.NoError(t, err)

	after, err := database.GetTeamByName(db, "Red")
	require.NoError(t, err)
	assert.Equal(t, before.ID, after.ID)
	assert.Equal(t, before.PasswordHash, after.PasswordHash)
	assert.False(t, after.HasRound2Access)

	teams, err := database.GetAllTeams(db)
	require.NoError(t, err)
	assert.Len(t, teams, 2)

	m, err := database.GetMatch(db, "qf")
	require.NoError(t, err)
	assert.Equal(t, models.StringList{after.ID}, m.SideATeamIDs)
}
