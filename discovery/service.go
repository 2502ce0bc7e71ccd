package discovery

import (
	"context"
	"errors"
	"fmt"

	"encore.app/pkg/catalog"
	"encore.app/upstream"
)

//encore:service
type Service struct {
	upstreamClient *upstream.Client
	rules          catalog.Rules
}

var svc *Service

func initService() (*Service, error) {
	rules, err := loadRules()
	if err != nil {
		return nil, fmt.Errorf("discovery: load rules: %w", err)
	}
	return &Service{
		upstreamClient: upstream.Get(),
		rules:          rules,
	}, nil
}

func init() {
	var err error
	svc, err = initService()
	if err != nil {
		panic(err)
	}
}

// Discover fetches the full upstream catalog and returns the filtered,
// categorized, deduplicated subset the orchestrators should ingest.
func Discover(ctx context.Context) ([]catalog.Descriptor, error) {
	if svc == nil {
		return nil, errors.New("discovery: service not initialized")
	}
	return svc.discover(ctx)
}

func (s *Service) discover(ctx context.Context) ([]catalog.Descriptor, error) {
	entries, err := s.upstreamClient.ListSchemes(ctx)
	if err != nil {
		return nil, fmt.Errorf("discovery: list schemes: %w", err)
	}

	refs := make([]catalog.SchemeRef, len(entries))
	for i, e := range entries {
		refs[i] = catalog.SchemeRef{SchemeCode: e.SchemeCode, SchemeName: e.SchemeName}
	}

	return catalog.Filter(refs, s.rules), nil
}
