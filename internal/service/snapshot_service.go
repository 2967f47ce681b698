package service

import (
	"context"
	"strings"

	"github.com/clinsight/ctr-registry-api/internal/models"
	"github.com/clinsight/ctr-registry-api/internal/realtime"
	appErrors "github.com/clinsight/ctr-registry-api/pkg/errors"
)

type snapshotStudyReader interface {
	List(ctx context.Context) ([]models.Study, error)
	FindByID(ctx context.Context, id string) (*models.Study, error)
}

type snapshotReleaseReader interface {
	ListByStudy(ctx context.Context, studyID string) ([]models.DatabaseRelease, error)
}

type snapshotEffortReader interface {
	ListByStudy(ctx context.Context, studyID string) ([]models.ReportingEffort, error)
	FindByID(ctx context.Context, id string) (*models.ReportingEffort, error)
}

type snapshotTrackerReader interface {
	ListRowsByEffort(ctx context.Context, effortID string) ([]models.TrackerRow, error)
}

// SnapshotService resolves the current state for a realtime
// subscription scope, so a client that just connected (or asked for a
// refresh) starts from the same truth later events are diffed against.
type SnapshotService struct {
	studies  snapshotStudyReader
	releases snapshotReleaseReader
	efforts  snapshotEffortReader
	trackers snapshotTrackerReader
}

// NewSnapshotService constructs a SnapshotService.
func NewSnapshotService(studies snapshotStudyReader, releases snapshotReleaseReader, efforts snapshotEffortReader, trackers snapshotTrackerReader) *SnapshotService {
	return &SnapshotService{studies: studies, releases: releases, efforts: efforts, trackers: trackers}
}

// Snapshot implements realtime.SnapshotProvider.
func (s *SnapshotService) Snapshot(ctx context.Context, scope string) (interface{}, error) {
	switch {
	case scope == realtime.ScopeGlobal:
		studies, err := s.studies.List(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"studies": studies}, nil

	case strings.HasPrefix(scope, "study:"):
		studyID := strings.TrimPrefix(scope, "study:")
		study, err := s.studies.FindByID(ctx, studyID)
		if err != nil {
			return nil, err
		}
		if study == nil {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "study not found")
		}
		releases, err := s.releases.ListByStudy(ctx, studyID)
		if err != nil {
			return nil, err
		}
		efforts, err := s.efforts.ListByStudy(ctx, studyID)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"study":             study,
			"database_releases": releases,
			"reporting_efforts": efforts,
		}, nil

	case strings.HasPrefix(scope, "effort:"):
		effortID := strings.TrimPrefix(scope, "effort:")
		effort, err := s.efforts.FindByID(ctx, effortID)
		if err != nil {
			return nil, err
		}
		if effort == nil {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "reporting effort not found")
		}
		rows, err := s.trackers.ListRowsByEffort(ctx, effortID)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"reporting_effort": effort,
			"trackers":         rows,
		}, nil

	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown subscription scope")
	}
}
