package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"suvidha-service/internal/model"
	"suvidha-service/internal/repository/sqlite"
	"suvidha-service/internal/util"
)

var emergencyContacts = []model.EmergencyContact{
	{Service: "Police", Number: "100"},
	{Service: "Fire", Number: "101"},
	{Service: "Ambulance", Number: "102"},
	{Service: "Women Helpline", Number: "1091"},
	{Service: "Child Helpline", Number: "1098"},
	{Service: "Electricity Emergency", Number: "1912"},
	{Service: "Gas Leak", Number: "1906"},
}

var validEmergencyTypes = map[string]bool{
	"fire":          true,
	"medical":       true,
	"crime":         true,
	"gas_leak":      true,
	"electrocution": true,
	"flooding":      true,
	"other":         true,
}

// Utility emergencies get a follow-up ticket in the owning department.
var emergencyDepartments = map[string]string{
	"gas_leak":      "gas",
	"electrocution": "electricity",
	"flooding":      "water",
}

// EmergencyService serves the helpline directory and files incident
// reports. Reports from registered citizens also open a critical
// service request so the helpdesk tracks them to closure.
type EmergencyService struct {
	emergencies *sqlite.EmergencyRepository
	citizens    *sqlite.CitizenRepository
	requests    *RequestService
	events      EventPublisher
}

func NewEmergencyService(
	emergencies *sqlite.EmergencyRepository,
	citizens *sqlite.CitizenRepository,
	requests *RequestService,
	events EventPublisher,
) *EmergencyService {
	return &EmergencyService{
		emergencies: emergencies,
		citizens:    citizens,
		requests:    requests,
		events:      events,
	}
}

// Contacts returns the national helpline directory.
func (s *EmergencyService) Contacts() []model.EmergencyContact {
	out := make([]model.EmergencyContact, len(emergencyContacts))
	copy(out, emergencyContacts)
	return out
}

// Report files an incident. citizenID may be empty for anonymous or
// guest reports.
func (s *EmergencyService) Report(ctx context.Context, citizenID, emergencyType, location, description, reporterName, reporterPhone string) (*model.EmergencyReport, error) {
	if !validEmergencyTypes[emergencyType] {
		return nil, fmt.Errorf("%w: unknown emergency type %q", ErrInvalidInput, emergencyType)
	}
	if location == "" {
		return nil, fmt.Errorf("%w: location is required", ErrInvalidInput)
	}
	if reporterPhone != "" && !util.ValidatePhone(reporterPhone) {
		return nil, ErrInvalidPhone
	}

	var citizenRowID *uint
	if citizenID != "" {
		citizen, err := s.citizens.FindByCitizenID(ctx, citizenID)
		if err != nil {
			if !errors.Is(err, sqlite.ErrNotFound) {
				return nil, err
			}
		} else {
			citizenRowID = &citizen.ID
			if reporterName == "" {
				reporterName = citizen.Name
			}
			if reporterPhone == "" {
				reporterPhone = citizen.Phone
			}
		}
	}

	now := time.Now().UTC()
	report := &model.EmergencyReport{
		ReportID:      model.NewEmergencyID(now),
		CitizenID:     citizenRowID,
		EmergencyType: emergencyType,
		Location:      util.SanitizeInput(location),
		Description:   util.SanitizeInput(description),
		Severity:      model.PriorityCritical,
		ReporterName:  util.SanitizeInput(reporterName),
		ReporterPhone: reporterPhone,
		Status:        model.StatusSubmitted,
	}
	if err := s.emergencies.Create(ctx, report); err != nil {
		return nil, err
	}

	if dept, ok := emergencyDepartments[emergencyType]; ok && citizenRowID != nil {
		desc := fmt.Sprintf("Emergency report %s: %s at %s", report.ReportID, emergencyType, report.Location)
		if _, err := s.requests.CreateRequest(ctx, citizenID, dept, "Emergency Follow-up", desc, model.PriorityCritical); err != nil {
			util.Warn("Failed to open follow-up request for emergency",
				util.String("report_id", report.ReportID),
				util.ErrorField(err),
			)
		}
	}

	if s.events != nil {
		if err := s.events.PublishEvent(ctx, "emergency.reported", report.ReportID, report); err != nil {
			util.Warn("Failed to publish event",
				util.String("event_type", "emergency.reported"),
				util.ErrorField(err),
			)
		}
	}

	util.Warn("Emergency reported",
		util.String("report_id", report.ReportID),
		util.String("type", emergencyType),
		util.String("location", report.Location),
	)
	return report, nil
}

// RecentReports lists the latest incidents. Admin only.
func (s *EmergencyService) RecentReports(ctx context.Context, limit int) ([]model.EmergencyReport, error) {
	return s.emergencies.ListRecent(ctx, limit)
}
