package admin

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ZJUSCT/CFBingo/internal/contest"
	"github.com/ZJUSCT/CFBingo/internal/database"
	"github.com/ZJUSCT/CFBingo/internal/util"
	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
)

const (
	sheetRound1 = "Round 1"
	sheetRound2 = "Round 2"
)

func writeRows(f *excelize.File, sheet string, header []string, rows [][]interface{}, style int) error {
	for i, h := range header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(header), 1)
	if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
		return err
	}
	for i, row := range rows {
		for j, v := range row {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// buildWorkbook renders the Round 1 leaderboard and the Round 2 bracket.
func buildWorkbook(entries []database.LeaderboardEntry, matches []contest.MatchSummary) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheetRound1); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(sheetRound2); err != nil {
		return nil, err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"EEEEEE"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, err
	}

	r1 := make([][]interface{}, 0, len(entries))
	for _, e := range entries {
		last := ""
		if e.LastSubmissionTime != nil {
			last = e.LastSubmissionTime.UTC().Format(time.RFC3339)
		}
		r1 = append(r1, []interface{}{e.Rank, e.TeamName, e.Score, e.SolvedCount, e.BingoCount, last})
	}
	if err := writeRows(f, sheetRound1, []string{"Rank", "Team", "Score", "Solved", "Bingo Lines", "Last Solve (UTC)"}, r1, headerStyle); err != nil {
		return nil, err
	}

	r2 := make([][]interface{}, 0, len(matches))
	for _, m := range matches {
		winner := ""
		if m.WinningSide != nil {
			winner = string(*m.WinningSide)
		}
		r2 = append(r2, []interface{}{
			m.RoundName, m.MatchID,
			strings.Join(m.SideA, ", "), strings.Join(m.SideB, ", "),
			m.ScoreA, m.ScoreB, string(m.Status), winner,
		})
	}
	if err := writeRows(f, sheetRound2, []string{"Round", "Match", "Side A", "Side B", "Score A", "Score B", "Status", "Winner"}, r2, headerStyle); err != nil {
		return nil, err
	}
	return f, nil
}

func (h *Handler) export(c *gin.Context) {
	ctx := c.Request.Context()
	entries, err := h.svc.Round1Leaderboard(ctx)
	if err != nil {
		util.Fail(c, err)
		return
	}
	matches, err := h.svc.Standings(ctx)
	if err != nil {
		util.Fail(c, err)
		return
	}

	f, err := buildWorkbook(entries, matches)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, fmt.Errorf("failed to build workbook: %w", err))
		return
	}
	defer f.Close()

	filename := fmt.Sprintf("cfbingo-results-%s.xlsx", time.Now().UTC().Format("20060102-150405"))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename="+filename)
	if err := f.Write(c.Writer); err != nil {
		util.Error(c, http.StatusInternalServerError, err)
	}
}
