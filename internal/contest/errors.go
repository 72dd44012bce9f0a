package contest

import (
	"errors"

	"github.com/ZJUSCT/CFBingo/internal/tugofwar"
)

var (
	ErrNotFound                  = errors.New("not found")
	ErrExternalSourceUnavailable = errors.New("codeforces is unavailable, try again later")
	ErrRateLimited               = errors.New("rate limit exceeded, please wait before syncing again")
	ErrMatchNotActive            = errors.New("match is not active")
	ErrNotInMatch                = errors.New("team is not part of this match")
	ErrInvalidTransition         = tugofwar.ErrInvalidTransition
	ErrNoRound2Access            = errors.New("team has not qualified for round 2")
	ErrInvalidCredentials        = errors.New("invalid team name or password")
	ErrNoHandle                  = errors.New("team has no codeforces handle")
	ErrHandleAlreadySet          = errors.New("codeforces handle already set")
	ErrBoardNotSeeded            = errors.New("round 1 problems have not been seeded")
	ErrNotTimedOut               = errors.New("match clock has not run out")
	ErrTeamExists                = errors.New("team name already exists")
)
