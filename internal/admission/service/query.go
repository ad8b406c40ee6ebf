package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/admission/domain"
	"github.com/smallbiznis/carebill/internal/apperror"
	"github.com/smallbiznis/carebill/pkg/db/pagination"
)

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Admission, error) {
	return s.load(ctx, id)
}

func (s *Service) List(ctx context.Context, req domain.ListAdmissionRequest) (domain.ListAdmissionResponse, error) {
	filter, err := listFilter(req)
	if err != nil {
		return domain.ListAdmissionResponse{}, err
	}
	cursor, err := req.CursorID()
	if err != nil {
		return domain.ListAdmissionResponse{}, apperror.Validation("page_token", "malformed")
	}
	filter.BeforeID = cursor
	filter.Limit = req.Limit() + 1

	rows, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return domain.ListAdmissionResponse{}, fmt.Errorf("list admissions: %w", err)
	}
	rows, info := pagination.Trim(rows, req.Limit(), func(a *domain.Admission) int64 { return a.ID.Int64() })

	out := make([]domain.Admission, 0, len(rows))
	for _, a := range rows {
		out = append(out, *a)
	}
	return domain.ListAdmissionResponse{PageInfo: info, Admissions: out}, nil
}

// History returns every admission of the patient, newest first.
func (s *Service) History(ctx context.Context, patientID snowflake.ID) ([]domain.Admission, error) {
	if patientID == 0 {
		return nil, apperror.Validation("patient_id", "is required")
	}
	rows, err := s.repo.List(ctx, s.db, domain.ListFilter{PatientID: patientID})
	if err != nil {
		return nil, fmt.Errorf("admission history: %w", err)
	}
	out := make([]domain.Admission, 0, len(rows))
	for _, a := range rows {
		out = append(out, *a)
	}
	return out, nil
}

func (s *Service) Count(ctx context.Context, req domain.ListAdmissionRequest) (int64, error) {
	filter, err := listFilter(req)
	if err != nil {
		return 0, err
	}
	count, err := s.repo.Count(ctx, s.db, filter)
	if err != nil {
		return 0, fmt.Errorf("count admissions: %w", err)
	}
	return count, nil
}

func listFilter(req domain.ListAdmissionRequest) (domain.ListFilter, error) {
	filter := domain.ListFilter{PatientID: req.PatientID, RoomID: req.RoomID}
	if req.Status != "" {
		filter.Status = domain.Status(strings.ToUpper(string(req.Status)))
		if !filter.Status.Valid() {
			return filter, apperror.Validation("status", "unknown admission status")
		}
	}
	return filter, nil
}
