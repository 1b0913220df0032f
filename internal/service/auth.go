package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/cloo-solutions/draftdesk/internal/domain"
)

const apiKeyPrefix = "ddk_"

type OwnerRepository interface {
	Create(ctx context.Context, owner *domain.Owner) error
	GetByID(ctx context.Context, id string) (*domain.Owner, error)
	GetByName(ctx context.Context, name string) (*domain.Owner, error)
	List(ctx context.Context) ([]*domain.Owner, error)
}

type APIKeyRepository interface {
	Create(ctx context.Context, key *domain.APIKey) error
	GetByID(ctx context.Context, id string) (*domain.APIKey, error)
	GetByHash(ctx context.Context, hash string) (*domain.APIKey, error)
	GetByOwnerID(ctx context.Context, ownerID string) ([]*domain.APIKey, error)
	Revoke(ctx context.Context, id string) error
}

// AuthService maps API keys to owner scopes. Identity itself lives
// outside this system.
type AuthService struct {
	ownerRepo OwnerRepository
	keyRepo   APIKeyRepository
	uuidGen   UUIDGenerator
}

func NewAuthService(ownerRepo OwnerRepository, keyRepo APIKeyRepository, uuidGen UUIDGenerator) *AuthService {
	return &AuthService{
		ownerRepo: ownerRepo,
		keyRepo:   keyRepo,
		uuidGen:   uuidGen,
	}
}

func (s *AuthService) CreateOwner(ctx context.Context, name string) (*domain.Owner, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.InvalidArgument("owner name is required")
	}

	owner := domain.NewOwner(s.uuidGen.NewString(), name, time.Now().UTC())
	if err := domain.ValidateOwner(owner); err != nil {
		return nil, domain.InvalidArgument("%v", err)
	}

	if err := s.ownerRepo.Create(ctx, owner); err != nil {
		return nil, err
	}

	return owner, nil
}

func (s *AuthService) GetOwnerByName(ctx context.Context, name string) (*domain.Owner, error) {
	return s.ownerRepo.GetByName(ctx, name)
}

func (s *AuthService) ListOwners(ctx context.Context) ([]*domain.Owner, error) {
	return s.ownerRepo.List(ctx)
}

func (s *AuthService) CreateAPIKey(ctx context.Context, ownerID, name string) (string, error) {
	if ownerID == "" {
		return "", domain.InvalidArgument("owner ID is required")
	}
	if name == "" {
		return "", domain.InvalidArgument("API key name is required")
	}

	_, err := s.ownerRepo.GetByID(ctx, ownerID)
	if err != nil {
		return "", err
	}

	token, err := generateAPIToken()
	if err != nil {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to generate API key", err)
	}

	hash := hashToken(token)

	key := domain.NewAPIKey(s.uuidGen.NewString(), ownerID, name, hash, time.Now().UTC(), nil)

	if err := domain.ValidateAPIKey(key); err != nil {
		return "", domain.InvalidArgument("%v", err)
	}

	if err := s.keyRepo.Create(ctx, key); err != nil {
		return "", err
	}

	return token, nil
}

func (s *AuthService) CreateAPIKeyWithToken(ctx context.Context, ownerID, name, token string) error {
	if ownerID == "" {
		return domain.InvalidArgument("owner ID is required")
	}
	if name == "" {
		return domain.InvalidArgument("API key name is required")
	}
	if !IsValidAPIToken(token) {
		return domain.InvalidArgument("invalid API key format (expected %s<64 hex chars>)", apiKeyPrefix)
	}

	_, err := s.ownerRepo.GetByID(ctx, ownerID)
	if err != nil {
		return err
	}

	hash := hashToken(token)

	key := domain.NewAPIKey(s.uuidGen.NewString(), ownerID, name, hash, time.Now().UTC(), nil)

	if err := domain.ValidateAPIKey(key); err != nil {
		return domain.InvalidArgument("%v", err)
	}

	return s.keyRepo.Create(ctx, key)
}

// ValidateAPIKey resolves a bearer token to the owner id it is bound to.
func (s *AuthService) ValidateAPIKey(ctx context.Context, token string) (string, error) {
	if !IsValidAPIToken(token) {
		return "", domain.ErrInvalidAPIKey
	}

	hash := hashToken(token)

	key, err := s.keyRepo.GetByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, domain.ErrAPIKeyNotFound) {
			return "", domain.ErrInvalidAPIKey
		}
		return "", err
	}

	if key.IsRevoked() {
		return "", domain.ErrAPIKeyRevoked
	}

	return key.OwnerID, nil
}

func (s *AuthService) RevokeAPIKey(ctx context.Context, keyID string) error {
	if keyID == "" {
		return domain.InvalidArgument("API key ID is required")
	}

	return s.keyRepo.Revoke(ctx, keyID)
}

// RevokeOwnedAPIKey revokes keyID only if it belongs to ownerID. A key of
// another owner reports not found.
func (s *AuthService) RevokeOwnedAPIKey(ctx context.Context, ownerID, keyID string) error {
	if ownerID == "" {
		return domain.InvalidArgument("owner ID is required")
	}
	if keyID == "" {
		return domain.InvalidArgument("API key ID is required")
	}

	key, err := s.keyRepo.GetByID(ctx, keyID)
	if err != nil {
		return err
	}
	if key.OwnerID != ownerID {
		return domain.ErrAPIKeyNotFound
	}

	return s.keyRepo.Revoke(ctx, keyID)
}

func (s *AuthService) ListAPIKeys(ctx context.Context, ownerID string) ([]*domain.APIKey, error) {
	if ownerID == "" {
		return nil, domain.InvalidArgument("owner ID is required")
	}

	return s.keyRepo.GetByOwnerID(ctx, ownerID)
}

func (s *AuthService) GetAPIKeyByHash(ctx context.Context, token string) (*domain.APIKey, error) {
	if !IsValidAPIToken(token) {
		return nil, domain.ErrInvalidAPIKey
	}
	hash := hashToken(token)
	return s.keyRepo.GetByHash(ctx, hash)
}

func generateAPIToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return apiKeyPrefix + hex.EncodeToString(bytes), nil
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

func IsValidAPIToken(token string) bool {
	if !strings.HasPrefix(token, apiKeyPrefix) {
		return false
	}
	hexPart := token[len(apiKeyPrefix):]
	if len(hexPart) != 64 {
		return false
	}
	for _, c := range hexPart {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
