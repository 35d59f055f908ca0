package services

import (
	"context"

	"ripple/internal/domain"
	"ripple/internal/redis"
	"ripple/internal/repository"
	"ripple/pkg/logger"

	"github.com/google/uuid"
)

// IdentityResolver confirms user existence and exposes public profile
// fields. Conversation creation validates every participant through it.
type IdentityResolver interface {
	Resolve(ctx context.Context, id uuid.UUID) (domain.Profile, error)
	// ResolveMany returns profiles keyed by id; ids that do not resolve are
	// simply absent from the map.
	ResolveMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.Profile, error)
}

type IdentityService struct {
	userRepo repository.UserRepository
	cache    *redis.CacheStore
	log      *logger.Logger
}

func NewIdentityService(userRepo repository.UserRepository, cache *redis.CacheStore, log *logger.Logger) *IdentityService {
	return &IdentityService{userRepo: userRepo, cache: cache, log: log}
}

func (s *IdentityService) Resolve(ctx context.Context, id uuid.UUID) (domain.Profile, error) {
	if s.cache != nil {
		cached, err := s.cache.GetProfile(ctx, id)
		if err != nil && s.log != nil {
			s.log.Errorf("profile cache read failed: %s", err)
		}
		if cached != nil {
			return *cached, nil
		}
	}

	u, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return domain.Profile{}, err
	}

	profile := u.Profile()
	if s.cache != nil {
		if err := s.cache.SetProfile(ctx, profile); err != nil && s.log != nil {
			s.log.Errorf("profile cache write failed: %s", err)
		}
	}
	return profile, nil
}

func (s *IdentityService) ResolveMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.Profile, error) {
	profiles := make(map[uuid.UUID]domain.Profile, len(ids))

	missing := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := profiles[id]; ok {
			continue
		}
		if s.cache != nil {
			cached, err := s.cache.GetProfile(ctx, id)
			if err == nil && cached != nil {
				profiles[id] = *cached
				continue
			}
		}
		missing = append(missing, id)
	}

	if len(missing) > 0 {
		users, err := s.userRepo.GetByIDs(ctx, missing)
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			profile := u.Profile()
			profiles[u.ID] = profile
			if s.cache != nil {
				if err := s.cache.SetProfile(ctx, profile); err != nil && s.log != nil {
					s.log.Errorf("profile cache write failed: %s", err)
				}
			}
		}
	}
	return profiles, nil
}
