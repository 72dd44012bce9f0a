package tugofwar

import (
	"strings"

	"github.com/ZJUSCT/CFBingo/internal/database/models"
)

// SideForHandle reports which side's handle list contains handle, ignoring
// case. The empty side means the handle plays for neither.
func SideForHandle(handle string, sideA, sideB []string) models.Side {
	if containsFold(sideA, handle) {
		return models.SideA
	}
	if containsFold(sideB, handle) {
		return models.SideB
	}
	return ""
}

// SideForAuthors returns the side of the first author handle that belongs to
// the match, together with that handle.
func SideForAuthors(handles []string, sideA, sideB []string) (models.Side, string) {
	for _, h := range handles {
		if side := SideForHandle(h, sideA, sideB); side != "" {
			return side, h
		}
	}
	return "", ""
}

// QuestionInPool finds the pool question with the given contest and problem
// index, or nil.
func QuestionInPool(contestID, problemIndex string, pool []models.Round2Question) *models.Round2Question {
	contestID = strings.TrimSpace(contestID)
	problemIndex = strings.TrimSpace(problemIndex)
	if contestID == "" || problemIndex == "" {
		return nil
	}
	for i := range pool {
		q := &pool[i]
		if strings.TrimSpace(q.ContestID) == contestID && strings.EqualFold(strings.TrimSpace(q.ProblemIndex), problemIndex) {
			return q
		}
	}
	return nil
}

// TeamIDForHandle returns the id of the first candidate team owning handle,
// either as its primary handle or as a member.
func TeamIDForHandle(handle string, candidates []models.Team) string {
	for _, t := range candidates {
		if strings.EqualFold(t.CodeforcesHandle, handle) || containsFold(t.Members, handle) {
			return t.ID
		}
	}
	return ""
}

func containsFold(list []string, s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	for _, v := range list {
		if strings.EqualFold(strings.TrimSpace(v), s) {
			return true
		}
	}
	return false
}
