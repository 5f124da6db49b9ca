package app

import (
	"context"

	"github.com/nationradar/nation-radar/internal/domain"
)

type stubSource struct{}

func (stubSource) ListAll(context.Context) ([]domain.StoredPost, error) { return nil, nil }
