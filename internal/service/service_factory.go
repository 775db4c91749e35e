package service

import (
	"gorm.io/gorm"

	"suvidha-service/internal/bucketing"
	"suvidha-service/internal/client"
	"suvidha-service/internal/config"
	"suvidha-service/internal/encryption"
	"suvidha-service/internal/hashing"
	"suvidha-service/internal/otp"
	redisrepo "suvidha-service/internal/repository/redis"
	"suvidha-service/internal/repository/sqlite"
)

// ServiceFactory wires repositories and infrastructure clients into
// the service layer. Optional backends (Kafka, Elasticsearch,
// ClickHouse, Redis sessions) may be nil; services degrade gracefully.
type ServiceFactory struct {
	cfg     *config.Config
	hasher  *hashing.Hasher
	crypto  *encryption.Manager
	buckets *bucketing.Manager
	otpSvc  *otp.Service

	citizens      *sqlite.CitizenRepository
	requests      *sqlite.RequestRepository
	payments      *sqlite.PaymentRepository
	documents     *sqlite.DocumentRepository
	notifications *sqlite.NotificationRepository
	departments   *sqlite.DepartmentRepository
	emergencies   *sqlite.EmergencyRepository
	settings      *sqlite.SettingRepository

	sessions *redisrepo.SessionCache
	search   *client.ESClient
	events   EventPublisher
	sink     BatchSink

	tokens *TokenManager

	authService         *AuthService
	requestService      *RequestService
	paymentService      *PaymentService
	documentService     *DocumentService
	notificationService *NotificationService
	emergencyService    *EmergencyService
	analyticsService    *AnalyticsService
}

type FactoryDeps struct {
	DB       *gorm.DB
	OTP      *otp.Service
	Hasher   *hashing.Hasher
	Crypto   *encryption.Manager
	Buckets  *bucketing.Manager
	Sessions *redisrepo.SessionCache
	Search   *client.ESClient
	Events   EventPublisher
	Sink     BatchSink
}

func NewServiceFactory(cfg *config.Config, deps FactoryDeps) *ServiceFactory {
	return &ServiceFactory{
		cfg:           cfg,
		hasher:        deps.Hasher,
		crypto:        deps.Crypto,
		buckets:       deps.Buckets,
		otpSvc:        deps.OTP,
		citizens:      sqlite.NewCitizenRepository(deps.DB),
		requests:      sqlite.NewRequestRepository(deps.DB),
		payments:      sqlite.NewPaymentRepository(deps.DB),
		documents:     sqlite.NewDocumentRepository(deps.DB),
		notifications: sqlite.NewNotificationRepository(deps.DB),
		departments:   sqlite.NewDepartmentRepository(deps.DB),
		emergencies:   sqlite.NewEmergencyRepository(deps.DB),
		settings:      sqlite.NewSettingRepository(deps.DB),
		sessions:      deps.Sessions,
		search:        deps.Search,
		events:        deps.Events,
		sink:          deps.Sink,
		tokens:        NewTokenManager(cfg),
	}
}

func (f *ServiceFactory) AuthService() *AuthService {
	if f.authService == nil {
		f.authService = NewAuthService(
			f.citizens,
			f.otpSvc,
			f.hasher,
			f.crypto,
			f.sessions,
			f.tokens,
			f.events,
			f.AnalyticsService(),
			f.cfg,
		)
	}
	return f.authService
}

func (f *ServiceFactory) RequestService() *RequestService {
	if f.requestService == nil {
		f.requestService = NewRequestService(
			f.requests,
			f.departments,
			f.citizens,
			f.NotificationService(),
			f.search,
			f.events,
			f.cfg,
		)
	}
	return f.requestService
}

func (f *ServiceFactory) PaymentService() *PaymentService {
	if f.paymentService == nil {
		f.paymentService = NewPaymentService(
			f.payments,
			f.citizens,
			f.NotificationService(),
			f.events,
		)
	}
	return f.paymentService
}

func (f *ServiceFactory) DocumentService() *DocumentService {
	if f.documentService == nil {
		f.documentService = NewDocumentService(
			f.documents,
			f.citizens,
			f.NotificationService(),
		)
	}
	return f.documentService
}

func (f *ServiceFactory) NotificationService() *NotificationService {
	if f.notificationService == nil {
		f.notificationService = NewNotificationService(f.notifications, f.citizens)
	}
	return f.notificationService
}

func (f *ServiceFactory) EmergencyService() *EmergencyService {
	if f.emergencyService == nil {
		f.emergencyService = NewEmergencyService(
			f.emergencies,
			f.citizens,
			f.RequestService(),
			f.events,
		)
	}
	return f.emergencyService
}

func (f *ServiceFactory) AnalyticsService() *AnalyticsService {
	if f.analyticsService == nil {
		f.analyticsService = NewAnalyticsService(
			f.sink,
			f.requests,
			f.citizens,
			f.payments,
			f.buckets,
		)
	}
	return f.analyticsService
}

func (f *ServiceFactory) DepartmentRepository() *sqlite.DepartmentRepository {
	return f.departments
}

func (f *ServiceFactory) SettingRepository() *sqlite.SettingRepository {
	return f.settings
}
