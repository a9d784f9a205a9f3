package service

import (
	"go.uber.org/zap"

	"sentinel/internal/config"
)

// Stores bundles the storage-side dependencies the services are built on.
// Everything is an interface so tests can swap in in-memory doubles.
type Stores struct {
	Events    EventStore
	Publisher AlertPublisher // optional
	Archiver  EventArchiver  // optional
	Counters  CounterStore
	Activity  ActivityReader
	Ledger    LedgerStore
	MFA       MFASecretStore
	Cipher    SecretCipher
}

// ServiceFactory wires the security services in dependency order: the event
// log first, since everything above it reports into it.
type ServiceFactory struct {
	eventLog         *EventLog
	credentialPolicy *CredentialPolicy
	rateLimiter      *RateLimiter
	threatScorer     *ThreatScorer
	tokenService     *TokenService
	mfaService       *MFAService
}

func NewServiceFactory(cfg *config.Config, stores Stores, logger *zap.Logger) *ServiceFactory {
	eventLog := NewEventLog(stores.Events, stores.Publisher, stores.Archiver, logger)
	rateLimiter := NewRateLimiter(stores.Counters, eventLog, DefaultPolicies(), logger)

	return &ServiceFactory{
		eventLog:         eventLog,
		credentialPolicy: NewCredentialPolicy(logger),
		rateLimiter:      rateLimiter,
		threatScorer:     NewThreatScorer(stores.Activity, eventLog, logger),
		tokenService: NewTokenService(
			stores.Ledger,
			[]byte(cfg.Security.SecretKey),
			cfg.Security.Issuer,
			cfg.Security.AccessTokenTTL,
			cfg.Security.RefreshTokenTTL,
			logger,
		),
		mfaService: NewMFAService(
			stores.MFA,
			stores.Cipher,
			rateLimiter,
			eventLog,
			cfg.Security.Issuer,
			cfg.Security.MFASetupTTL,
			cfg.Security.BackupCodeCount,
			logger,
		),
	}
}

func (s *ServiceFactory) EventLog() *EventLog                 { return s.eventLog }
func (s *ServiceFactory) CredentialPolicy() *CredentialPolicy { return s.credentialPolicy }
func (s *ServiceFactory) RateLimiter() *RateLimiter           { return s.rateLimiter }
func (s *ServiceFactory) ThreatScorer() *ThreatScorer         { return s.threatScorer }
func (s *ServiceFactory) TokenService() *TokenService         { return s.tokenService }
func (s *ServiceFactory) MFAService() *MFAService             { return s.mfaService }
