package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"suvidha-service/internal/client"
	"suvidha-service/internal/config"
	"suvidha-service/internal/model"
	"suvidha-service/internal/repository/sqlite"
	"suvidha-service/internal/util"
)

// RequestDetail bundles a request with its status trail.
type RequestDetail struct {
	Request *model.ServiceRequest        `json:"request"`
	History []model.RequestStatusHistory `json:"history"`
}

// requestDocument is the search index projection of a request.
type requestDocument struct {
	RequestID   string    `json:"request_id"`
	CitizenID   string    `json:"citizen_id"`
	Department  string    `json:"department"`
	ServiceType string    `json:"service_type"`
	Description string    `json:"description"`
	Priority    string    `json:"priority"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// RequestService owns the service request lifecycle from submission
// through feedback.
type RequestService struct {
	requests      *sqlite.RequestRepository
	departments   *sqlite.DepartmentRepository
	citizens      *sqlite.CitizenRepository
	notifications *NotificationService
	search        *client.ESClient
	events        EventPublisher
	cfg           *config.Config
}

func NewRequestService(
	requests *sqlite.RequestRepository,
	departments *sqlite.DepartmentRepository,
	citizens *sqlite.CitizenRepository,
	notifications *NotificationService,
	search *client.ESClient,
	events EventPublisher,
	cfg *config.Config,
) *RequestService {
	return &RequestService{
		requests:      requests,
		departments:   departments,
		citizens:      citizens,
		notifications: notifications,
		search:        search,
		events:        events,
		cfg:           cfg,
	}
}

var validPriorities = map[string]bool{
	model.PriorityLow:      true,
	model.PriorityMedium:   true,
	model.PriorityHigh:     true,
	model.PriorityCritical: true,
}

var validStatuses = map[string]bool{
	model.StatusSubmitted:  true,
	model.StatusInProgress: true,
	model.StatusResolved:   true,
	model.StatusClosed:     true,
	model.StatusRejected:   true,
}

func (s *RequestService) CreateRequest(ctx context.Context, citizenID, department, serviceType, description, priority string) (*model.ServiceRequest, error) {
	citizen, err := s.citizens.FindByCitizenID(ctx, citizenID)
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return nil, ErrCitizenNotFound
		}
		return nil, err
	}

	if _, err := s.departments.FindByCode(ctx, department); err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return nil, ErrUnknownDepartment
		}
		return nil, err
	}

	if serviceType == "" || description == "" {
		return nil, fmt.Errorf("%w: service type and description are required", ErrInvalidInput)
	}
	if util.ContainsSuspicious(description) {
		return nil, fmt.Errorf("%w: description contains disallowed content", ErrInvalidInput)
	}
	if priority == "" {
		priority = model.PriorityMedium
	}
	if !validPriorities[priority] {
		return nil, fmt.Errorf("%w: unknown priority %q", ErrInvalidInput, priority)
	}

	now := time.Now().UTC()
	req := &model.ServiceRequest{
		RequestID:   model.NewRequestID(now),
		CitizenID:   citizen.ID,
		Department:  department,
		ServiceType: util.SanitizeInput(serviceType),
		Description: util.SanitizeInput(description),
		Priority:    priority,
		Status:      model.StatusSubmitted,
	}
	if err := s.requests.Create(ctx, req); err != nil {
		return nil, err
	}

	s.notifications.Notify(ctx, citizen.ID, model.NotificationRequest,
		"Request submitted",
		fmt.Sprintf("Your request %s has been submitted to the %s department.", req.RequestID, department),
	)
	s.indexRequest(ctx, req, citizenID)
	s.publish(ctx, "request.created", req.RequestID, req)

	util.Info("Service request created",
		util.String("request_id", req.RequestID),
		util.String("department", department),
		util.String("priority", priority),
	)
	return req, nil
}

// GetRequest loads a request with history. A non-empty citizenID
// restricts the lookup to that citizen's own requests.
func (s *RequestService) GetRequest(ctx context.Context, citizenID, requestID string) (*RequestDetail, error) {
	req, err := s.requests.FindByRequestID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if citizenID != "" {
		citizen, err := s.citizens.FindByCitizenID(ctx, citizenID)
		if err != nil {
			return nil, ErrCitizenNotFound
		}
		if req.CitizenID != citizen.ID {
			return nil, sqlite.ErrNotFound
		}
	}

	history, err := s.requests.History(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return &RequestDetail{Request: req, History: history}, nil
}

func (s *RequestService) ListMyRequests(ctx context.Context, citizenID string) ([]model.ServiceRequest, error) {
	citizen, err := s.citizens.FindByCitizenID(ctx, citizenID)
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return nil, ErrCitizenNotFound
		}
		return nil, err
	}
	return s.requests.ListByCitizen(ctx, citizen.ID)
}

func (s *RequestService) ListRequests(ctx context.Context, status, department string, limit int) ([]model.ServiceRequest, error) {
	if status != "" && !validStatuses[status] {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	return s.requests.List(ctx, sqlite.ListFilter{
		Status:     status,
		Department: department,
		Limit:      limit,
	})
}

func (s *RequestService) UpdateStatus(ctx context.Context, requestID, status, comment, updatedBy string) error {
	if !validStatuses[status] {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}

	if err := s.requests.UpdateStatus(ctx, requestID, status, util.SanitizeInput(comment), updatedBy); err != nil {
		return err
	}

	req, err := s.requests.FindByRequestID(ctx, requestID)
	if err == nil {
		s.notifications.Notify(ctx, req.CitizenID, model.NotificationRequest,
			"Request "+status,
			fmt.Sprintf("Your request %s is now %s.", requestID, status),
		)
		s.reindex(ctx, req)
	}

	s.publish(ctx, "request.status_changed", requestID, map[string]interface{}{
		"request_id": requestID,
		"status":     status,
		"updated_by": updatedBy,
	})

	util.Info("Request status updated",
		util.String("request_id", requestID),
		util.String("status", status),
	)
	return nil
}

// SubmitFeedback accepts a 1 to 5 rating once the request is resolved
// or closed.
func (s *RequestService) SubmitFeedback(ctx context.Context, citizenID, requestID string, rating int, feedback string) error {
	if rating < 1 || rating > 5 {
		return fmt.Errorf("%w: rating must be between 1 and 5", ErrInvalidInput)
	}

	detail, err := s.GetRequest(ctx, citizenID, requestID)
	if err != nil {
		return err
	}
	if detail.Request.Status != model.StatusResolved && detail.Request.Status != model.StatusClosed {
		return fmt.Errorf("%w: feedback is only accepted on resolved requests", ErrInvalidInput)
	}

	return s.requests.SaveFeedback(ctx, requestID, rating, util.SanitizeInput(feedback))
}

// Search runs full-text search over requests. A non-empty citizenID
// scopes results to that citizen. Falls back to a LIKE scan when the
// search cluster is down.
func (s *RequestService) Search(ctx context.Context, citizenID, query string, limit int) ([]model.ServiceRequest, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: search query is required", ErrInvalidInput)
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var citizenRowID uint
	if citizenID != "" {
		citizen, err := s.citizens.FindByCitizenID(ctx, citizenID)
		if err != nil {
			return nil, ErrCitizenNotFound
		}
		citizenRowID = citizen.ID
	}

	if s.search == nil {
		return s.requests.SearchText(ctx, citizenRowID, query, limit)
	}

	ids, err := s.searchIndex(ctx, citizenID, query, limit)
	if err != nil {
		util.Warn("Search index query failed, falling back to database scan", util.ErrorField(err))
		return s.requests.SearchText(ctx, citizenRowID, query, limit)
	}

	results := make([]model.ServiceRequest, 0, len(ids))
	for _, id := range ids {
		req, err := s.requests.FindByRequestID(ctx, id)
		if err != nil {
			continue
		}
		results = append(results, *req)
	}
	return results, nil
}

func (s *RequestService) searchIndex(ctx context.Context, citizenID, query string, limit int) ([]string, error) {
	must := []map[string]interface{}{
		{
			"multi_match": map[string]interface{}{
				"query":  query,
				"fields": []string{"description", "service_type", "department"},
			},
		},
	}
	if citizenID != "" {
		must = append(must, map[string]interface{}{
			"term": map[string]interface{}{"citizen_id": citizenID},
		})
	}

	esQuery := map[string]interface{}{
		"size":    limit,
		"query":   map[string]interface{}{"bool": map[string]interface{}{"must": must}},
		"_source": []string{"request_id"},
	}

	res, err := s.search.Search(ctx, s.cfg.Elasticsearch.RequestIndex, esQuery)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source requestDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := s.search.ParseResponse(res, &parsed); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		ids = append(ids, hit.Source.RequestID)
	}
	return ids, nil
}

func (s *RequestService) indexRequest(ctx context.Context, req *model.ServiceRequest, citizenID string) {
	if s.search == nil {
		return
	}
	doc := requestDocument{
		RequestID:   req.RequestID,
		CitizenID:   citizenID,
		Department:  req.Department,
		ServiceType: req.ServiceType,
		Description: req.Description,
		Priority:    req.Priority,
		Status:      req.Status,
		CreatedAt:   req.CreatedAt,
	}
	res, err := s.search.IndexDocument(ctx, s.cfg.Elasticsearch.RequestIndex, req.RequestID, doc)
	if err != nil {
		util.Warn("Failed to index request", util.String("request_id", req.RequestID), util.ErrorField(err))
		return
	}
	res.Body.Close()
}

// reindex refreshes the status field after a transition. The citizen
// identifier is already in the index, only the projection changes.
func (s *RequestService) reindex(ctx context.Context, req *model.ServiceRequest) {
	if s.search == nil {
		return
	}
	update := map[string]interface{}{
		"request_id":   req.RequestID,
		"department":   req.Department,
		"service_type": req.ServiceType,
		"description":  req.Description,
		"priority":     req.Priority,
		"status":       req.Status,
		"created_at":   req.CreatedAt,
	}
	res, err := s.search.IndexDocument(ctx, s.cfg.Elasticsearch.RequestIndex, req.RequestID, update)
	if err != nil {
		util.Warn("Failed to reindex request", util.String("request_id", req.RequestID), util.ErrorField(err))
		return
	}
	res.Body.Close()
}

func (s *RequestService) publish(ctx context.Context, eventType, key string, payload interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishEvent(ctx, eventType, key, payload); err != nil {
		util.Warn("Failed to publish event",
			util.String("event_type", eventType),
			util.ErrorField(err),
		)
	}
}
