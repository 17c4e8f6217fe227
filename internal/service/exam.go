package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"glowsalon/backend/internal/domain"
	"glowsalon/backend/internal/store"
)

// No 0/O or 1/I, the codes are read aloud and typed by hand.
const (
	examCodeAlphabet     = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	examCodeLength       = 8
	examCodeLookupLength = 2
)

// IssueExamCode creates a single-use theory exam code. The plain code is only
// returned here; the store keeps its bcrypt hash.
func (s *Service) IssueExamCode(ctx context.Context, req domain.ExamCodeIssueRequest) (domain.ExamCodeIssueResponse, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.ExamCodeIssueResponse{}, err
	}
	label := strings.TrimSpace(req.Label)
	if label == "" {
		return domain.ExamCodeIssueResponse{}, fmt.Errorf("%w: label is required", store.ErrInvalidInput)
	}

	code, err := generateExamCode()
	if err != nil {
		return domain.ExamCodeIssueResponse{}, fmt.Errorf("generate exam code: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return domain.ExamCodeIssueResponse{}, fmt.Errorf("hash exam code: %w", err)
	}

	actor, _ := ActorFromContext(ctx)
	now := s.now()
	created, err := s.repo.CreateExamCode(ctx, domain.ExamCode{
		Label:        label,
		CodeHash:     string(hash),
		LookupPrefix: code[:examCodeLookupLength],
		CreatedBy:    actor.Username,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.examCodeTTL),
	})
	if err != nil {
		return domain.ExamCodeIssueResponse{}, err
	}

	s.logAudit(ctx, "exam_code_issue", "exam_code", created.ID, fmt.Sprintf("label=%s,expires_at=%s", created.Label, created.ExpiresAt.Format(time.RFC3339)))
	return domain.ExamCodeIssueResponse{ExamCode: *created, Code: code}, nil
}

func (s *Service) ListExamCodes(ctx context.Context) ([]domain.ExamCode, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}
	return s.repo.ListExamCodes(ctx)
}

// RedeemExamCode burns a live code for a candidate. Unknown, expired and
// already used codes all report ErrExamCodeInvalid.
func (s *Service) RedeemExamCode(ctx context.Context, req domain.ExamRedeemRequest) (domain.ExamCode, error) {
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	candidate := strings.TrimSpace(req.CandidateName)
	if code == "" || candidate == "" {
		return domain.ExamCode{}, fmt.Errorf("%w: code and candidate name are required", store.ErrInvalidInput)
	}

	if len(code) != examCodeLength {
		s.logger.WithField("candidate", candidate).Info("exam code redemption rejected")
		return domain.ExamCode{}, ErrExamCodeInvalid
	}

	codes, err := s.repo.ListExamCodes(ctx)
	if err != nil {
		return domain.ExamCode{}, err
	}

	now := s.now()
	for _, candidateCode := range redeemableCodes(codes, code, now) {
		if bcrypt.CompareHashAndPassword([]byte(candidateCode.CodeHash), []byte(code)) != nil {
			continue
		}

		used, err := s.repo.MarkExamCodeUsed(ctx, candidateCode.ID, candidate, now)
		if errors.Is(err, store.ErrConflict) {
			// Lost the race against another redemption of the same code.
			return domain.ExamCode{}, ErrExamCodeInvalid
		}
		if err != nil {
			return domain.ExamCode{}, err
		}
		s.logAudit(ctx, "exam_code_redeem", "exam_code", used.ID, "candidate="+candidate)
		return *used, nil
	}

	s.logger.WithField("candidate", candidate).Info("exam code redemption rejected")
	return domain.ExamCode{}, ErrExamCodeInvalid
}

// redeemableCodes keeps the live codes whose lookup prefix matches code.
// Codes stored without a prefix are always kept.
func redeemableCodes(codes []domain.ExamCode, code string, now time.Time) []domain.ExamCode {
	prefix := code
	if len(prefix) > examCodeLookupLength {
		prefix = prefix[:examCodeLookupLength]
	}
	out := make([]domain.ExamCode, 0, 1)
	for _, candidate := range codes {
		if candidate.UsedAt != nil || !now.Before(candidate.ExpiresAt) {
			continue
		}
		if candidate.LookupPrefix != "" && candidate.LookupPrefix != prefix {
			continue
		}
		out = append(out, candidate)
	}
	return out
}

func generateExamCode() (string, error) {
	size := big.NewInt(int64(len(examCodeAlphabet)))
	var b strings.Builder
	b.Grow(examCodeLength)
	for i := 0; i < examCodeLength; i++ {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		b.WriteByte(examCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}
