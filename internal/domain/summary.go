package domain

import (
	"sort"
	"time"
)

// ParticipantResult is one ranked row of a finished room.
type ParticipantResult struct {
	Identity       string `json:"identity"`
	DisplayName    string `json:"displayName"`
	Score          int    `json:"score"`
	CorrectAnswers int    `json:"correctAnswers"`
	TotalAnswers   int    `json:"totalAnswers"`
	Rank           int    `json:"rank"`
}

// QuestionStat aggregates answers for one question index.
type QuestionStat struct {
	Index          int    `json:"index"`
	QuestionID     string `json:"questionId"`
	Answers        int    `json:"answers"`
	CorrectAnswers int    `json:"correctAnswers"`
	AvgResponseMs  int64  `json:"avgResponseMs"`
}

// RoomSummary is the final immutable record emitted when a room
// finishes, handed to the results collaborator for persistence.
type RoomSummary struct {
	RoomID       string              `json:"roomId"`
	QuizID       string              `json:"quizId"`
	HostID       string              `json:"hostId"`
	TimeMode     TimeMode            `json:"timeMode"`
	FinishedAt   time.Time           `json:"finishedAt"`
	Participants []ParticipantResult `json:"participants"`
	Questions    []QuestionStat      `json:"questions"`
}

// BuildSummary ranks participants (score desc, then earliest activity,
// then name) and aggregates per-question answer stats. Kicked entries
// are included; their partial score is part of the record.
func BuildSummary(room *Room, participants map[string]*Participant, finishedAt time.Time) RoomSummary {
	results := make([]ParticipantResult, 0, len(participants))
	activity := make(map[string]time.Time, len(participants))
	for _, p := range participants {
		if p.Role == RoleHost {
			continue
		}
		correct := 0
		for _, rec := range p.Answered {
			if rec.Correct {
				correct++
			}
		}
		results = append(results, ParticipantResult{
			Identity:       p.Identity,
			DisplayName:    p.DisplayName,
			Score:          p.Score,
			CorrectAnswers: correct,
			TotalAnswers:   len(p.Answered),
		})
		activity[p.Identity] = p.LastActivityAt
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		ti, tj := activity[results[i].Identity], activity[results[j].Identity]
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return results[i].DisplayName < results[j].DisplayName
	})
	for i := range results {
		results[i].Rank = i + 1
	}

	stats := make([]QuestionStat, room.Quiz.Len())
	for i := range stats {
		stats[i] = QuestionStat{Index: i, QuestionID: room.Quiz.Questions[i].ID}
	}
	for _, p := range participants {
		if p.Role == RoleHost {
			continue
		}
		for idx, rec := range p.Answered {
			if idx < 0 || idx >= len(stats) {
				continue
			}
			stats[idx].Answers++
			if rec.Correct {
				stats[idx].CorrectAnswers++
			}
			stats[idx].AvgResponseMs += rec.ResponseTimeMs
		}
	}
	for i := range stats {
		if stats[i].Answers > 0 {
			stats[i].AvgResponseMs /= int64(stats[i].Answers)
		}
	}

	return RoomSummary{
		RoomID:       room.ID,
		QuizID:       room.Quiz.QuizID,
		HostID:       room.HostID,
		TimeMode:     room.TimeMode,
		FinishedAt:   finishedAt,
		Participants: results,
		Questions:    stats,
	}
}
