// Package compat derives a couple-level compatibility view from the
// finished game sessions of a pair. It only reads.
package compat

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-dating-realtime/internal/apperr"
	"github.com/tbourn/go-dating-realtime/internal/domain"
	"github.com/tbourn/go-dating-realtime/internal/game"
	"github.com/tbourn/go-dating-realtime/internal/repo"
)

// ReadyThreshold is how many families must be completed before the
// higher-order summary is produced.
const ReadyThreshold = 3

// Family statuses in a Profile.
const (
	StatusNotStarted = "notStarted"
	StatusInProgress = "inProgress"
	StatusCompleted  = "completed"
)

// FamilyView is the pair's standing in one game family.
type FamilyView struct {
	Family      string     `json:"family"`
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	SessionID   string     `json:"sessionId,omitempty"`
	Score       *float64   `json:"score,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	HasInsights bool       `json:"hasInsights"`
}

// Profile is the combined view for a pair.
type Profile struct {
	UserID            string       `json:"userId"`
	PartnerID         string       `json:"partnerId"`
	Families          []FamilyView `json:"families"`
	CompletedFamilies int          `json:"completedFamilies"`
	Ready             bool         `json:"ready"`
	OverallScore      *float64     `json:"overallScore,omitempty"`
	Summary           string       `json:"summary,omitempty"`
}

// Aggregator builds Profiles.
type Aggregator struct {
	DB       *gorm.DB
	Families game.Families
}

// Aggregate returns the profile of userID and partnerID. The two must share
// a match.
func (a *Aggregator) Aggregate(ctx context.Context, userID, partnerID string) (*Profile, error) {
	tr := otel.Tracer("compat/Aggregator")
	ctx, span := tr.Start(ctx, "Aggregate", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.String("partner.id", partnerID),
	))
	defer span.End()

	if userID == partnerID {
		return nil, apperr.Invalidf("partner must be another user")
	}
	if _, err := repo.FindMatchByPair(ctx, a.DB, userID, partnerID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, apperr.Forbiddenf("not matched with this user")
		}
		return nil, apperr.TransientErr(err)
	}
	sessions, err := repo.ListSessionsForPair(ctx, a.DB, domain.PairKey(userID, partnerID))
	if err != nil {
		return nil, apperr.TransientErr(err)
	}
	return Build(a.Families, userID, partnerID, sessions), nil
}

func finished(s *domain.GameSession) bool {
	return s.Status == domain.SessionCompleted || s.Status == domain.SessionDiscussion
}

// Build folds sessions into a Profile. Per family it keeps the most
// recently completed session, or reports a live one as in progress.
func Build(families game.Families, userID, partnerID string, sessions []domain.GameSession) *Profile {
	p := &Profile{UserID: userID, PartnerID: partnerID, Families: make([]FamilyView, 0, len(families))}

	latest := map[string]*domain.GameSession{}
	live := map[string]*domain.GameSession{}
	for i := range sessions {
		s := &sessions[i]
		switch {
		case finished(s) && s.CompletedAt != nil:
			if cur, ok := latest[s.Family]; !ok || s.CompletedAt.After(*cur.CompletedAt) {
				latest[s.Family] = s
			}
		case s.ActiveKey != nil:
			live[s.Family] = s
		}
	}

	var (
		sum    float64
		scored int
		best   *FamilyView
	)
	for _, id := range families.IDs() {
		d := families[id]
		v := FamilyView{Family: id, Name: d.Name, Status: StatusNotStarted}
		if s, ok := latest[id]; ok {
			v.Status = StatusCompleted
			v.SessionID = s.ID
			v.CompletedAt = s.CompletedAt
			v.HasInsights = s.InsightsGenerated
			if d.Score != nil && s.Results != nil && s.Results.BothAnswered > 0 {
				score := s.Results.CompatibilityPercent
				v.Score = &score
				sum += score
				scored++
			}
			p.CompletedFamilies++
		} else if s, ok := live[id]; ok {
			v.Status = StatusInProgress
			v.SessionID = s.ID
		}
		p.Families = append(p.Families, v)
		if v.Score != nil && (best == nil || *v.Score > *best.Score) {
			best = &p.Families[len(p.Families)-1]
		}
	}

	if scored > 0 {
		overall := math.Round(sum/float64(scored)*10) / 10
		p.OverallScore = &overall
	}
	p.Ready = p.CompletedFamilies >= ReadyThreshold
	if p.Ready {
		p.Summary = fmt.Sprintf("You have finished %d games together.", p.CompletedFamilies)
		if p.OverallScore != nil {
			p.Summary = fmt.Sprintf("You have finished %d games together and agree %.0f%% of the time.", p.CompletedFamilies, *p.OverallScore)
		}
		if best != nil {
			p.Summary += fmt.Sprintf(" You are most in sync in %s.", best.Name)
		}
	}
	return p
}
