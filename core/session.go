package core

import (
	"context"
	"fmt"

	"github.com/goliatone/go-ledger-sync/transform"
)

// providerSession binds one integration's credential to the gateway and runs
// EnsureValidToken ahead of every call.
type providerSession struct {
	integrationID string
	cred          IntegrationCredential
	tokens        *TokenManager
	api           ExternalAPI
}

func (s *Service) openSession(ctx context.Context, integration Integration) (*providerSession, error) {
	if s.api == nil {
		return nil, fmt.Errorf("core: external api is not configured")
	}
	cred, found, err := s.credentials.Load(ctx, integration.ID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: integration %s has no stored credential", ErrAuthenticationExpired, integration.ID)
	}
	if cred.RealmID == "" {
		cred.RealmID = integration.RealmID
	}
	return &providerSession{
		integrationID: integration.ID,
		cred:          cred,
		tokens:        s.tokens,
		api:           s.api,
	}, nil
}

func (p *providerSession) credential(ctx context.Context) (IntegrationCredential, error) {
	cred, err := p.tokens.EnsureValidToken(ctx, p.integrationID, p.cred)
	if err != nil {
		return IntegrationCredential{}, err
	}
	p.cred = cred
	return cred, nil
}

func (p *providerSession) Count(ctx context.Context, kind transform.EntityName) (int, error) {
	cred, err := p.credential(ctx)
	if err != nil {
		return 0, err
	}
	return p.api.Count(ctx, cred, kind)
}

func (p *providerSession) List(ctx context.Context, kind transform.EntityName, page, pageSize int) (ExternalPage, error) {
	cred, err := p.credential(ctx)
	if err != nil {
		return ExternalPage{}, err
	}
	return p.api.List(ctx, cred, kind, page, pageSize)
}

func (p *providerSession) GetByID(ctx context.Context, kind transform.EntityName, id string) (ExternalRecord, error) {
	cred, err := p.credential(ctx)
	if err != nil {
		return ExternalRecord{}, err
	}
	return p.api.GetByID(ctx, cred, kind, id)
}

func (p *providerSession) FindByName(ctx context.Context, kind transform.EntityName, name string) (ExternalRecord, bool, error) {
	cred, err := p.credential(ctx)
	if err != nil {
		return ExternalRecord{}, false, err
	}
	return p.api.FindByName(ctx, cred, kind, name)
}

func (p *providerSession) Create(ctx context.Context, kind transform.EntityName, payload any) (ExternalRecord, error) {
	cred, err := p.credential(ctx)
	if err != nil {
		return ExternalRecord{}, err
	}
	return p.api.Create(ctx, cred, kind, payload)
}

func (p *providerSession) Update(ctx context.Context, kind transform.EntityName, payload any) (ExternalRecord, error) {
	cred, err := p.credential(ctx)
	if err != nil {
		return ExternalRecord{}, err
	}
	return p.api.Update(ctx, cred, kind, payload)
}

func (p *providerSession) CompanyInfo(ctx context.Context) (transform.CompanyInfo, error) {
	cred, err := p.credential(ctx)
	if err != nil {
		return transform.CompanyInfo{}, err
	}
	return p.api.CompanyInfo(ctx, cred)
}
