package model

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// Request lifecycle states.
const (
	StatusSubmitted  = "Submitted"
	StatusInProgress = "In Progress"
	StatusResolved   = "Resolved"
	StatusClosed     = "Closed"
	StatusRejected   = "Rejected"
)

// Request priorities.
const (
	PriorityLow      = "Low"
	PriorityMedium   = "Medium"
	PriorityHigh     = "High"
	PriorityCritical = "Critical"
)

// Payment states.
const (
	PaymentPending   = "Pending"
	PaymentOverdue   = "Overdue"
	PaymentCompleted = "Completed"
)

// Document states.
const (
	DocumentUploaded = "Uploaded"
	DocumentVerified = "Verified"
	DocumentRejected = "Rejected"
)

// Notification types.
const (
	NotificationInfo    = "info"
	NotificationRequest = "request"
	NotificationPayment = "payment"
	NotificationAlert   = "alert"
)

// Citizen is a registered resident. The Aadhaar number is never stored in
// the clear: lookups go through AadhaarHash, recovery through the envelope
// encrypted copy.
type Citizen struct {
	ID               uint       `gorm:"primaryKey" json:"-"`
	CitizenID        string     `gorm:"uniqueIndex;size:32" json:"citizen_id"`
	AadhaarHash      string     `gorm:"uniqueIndex;size:64" json:"-"`
	AadhaarEncrypted string     `gorm:"size:512" json:"-"`
	Name             string     `gorm:"size:128" json:"name"`
	Phone            string     `gorm:"index;size:16" json:"phone"`
	Email            string     `gorm:"size:128" json:"email,omitempty"`
	Address          string     `gorm:"size:256" json:"address,omitempty"`
	Pincode          string     `gorm:"size:8" json:"pincode,omitempty"`
	Language         string     `gorm:"size:8;default:en" json:"language"`
	LastLoginAt      *time.Time `json:"last_login_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"-"`
}

// ServiceRequest is a citizen complaint or service ticket routed to a
// municipal department.
type ServiceRequest struct {
	ID          uint       `gorm:"primaryKey" json:"-"`
	RequestID   string     `gorm:"uniqueIndex;size:32" json:"request_id"`
	CitizenID   uint       `gorm:"index" json:"-"`
	Department  string     `gorm:"index;size:32" json:"department"`
	ServiceType string     `gorm:"size:64" json:"service_type"`
	Description string     `gorm:"size:2048" json:"description"`
	Priority    string     `gorm:"size:16" json:"priority"`
	Status      string     `gorm:"index;size:16" json:"status"`
	AssignedTo  string     `gorm:"size:64" json:"assigned_to,omitempty"`
	Rating      *int       `json:"rating,omitempty"`
	Feedback    string     `gorm:"size:1024" json:"feedback,omitempty"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// RequestStatusHistory is one row per status transition, including the
// initial submission.
type RequestStatusHistory struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	RequestID string    `gorm:"index;size:32" json:"request_id"`
	Status    string    `gorm:"size:16" json:"status"`
	Comment   string    `gorm:"size:512" json:"comment,omitempty"`
	UpdatedBy string    `gorm:"size:64" json:"updated_by"`
	CreatedAt time.Time `json:"created_at"`
}

// Payment is a utility bill and, once paid, its transaction record.
type Payment struct {
	ID            uint       `gorm:"primaryKey" json:"-"`
	PaymentID     string     `gorm:"uniqueIndex;size:32" json:"payment_id"`
	CitizenID     uint       `gorm:"index" json:"-"`
	BillType      string     `gorm:"size:32" json:"bill_type"`
	BillNumber    string     `gorm:"size:32" json:"bill_number"`
	Amount        float64    `json:"amount"`
	DueDate       time.Time  `json:"due_date"`
	Status        string     `gorm:"index;size:16" json:"status"`
	Method        string     `gorm:"size:16" json:"method,omitempty"`
	TransactionID string     `gorm:"size:32" json:"transaction_id,omitempty"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Document is uploaded file metadata. File bytes live elsewhere.
type Document struct {
	ID          uint       `gorm:"primaryKey" json:"-"`
	DocumentID  string     `gorm:"uniqueIndex;size:32" json:"document_id"`
	CitizenID   uint       `gorm:"index" json:"-"`
	Name        string     `gorm:"size:128" json:"name"`
	Type        string     `gorm:"size:32" json:"type"`
	SizeBytes   int64      `json:"size_bytes"`
	ContentHash string     `gorm:"size:64" json:"content_hash,omitempty"`
	Status      string     `gorm:"size:16" json:"status"`
	VerifiedAt  *time.Time `json:"verified_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Notification is one inbox entry for a citizen.
type Notification struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CitizenID uint      `gorm:"index" json:"-"`
	Type      string    `gorm:"size:16" json:"type"`
	Title     string    `gorm:"size:128" json:"title"`
	Message   string    `gorm:"size:1024" json:"message"`
	IsRead    bool      `gorm:"index" json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// Department is a municipal department with its helpline and service
// catalog. Seeded at startup, served read-only.
type Department struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	Code      string    `gorm:"uniqueIndex;size:32" json:"code"`
	Name      string    `gorm:"size:64" json:"name"`
	NameHindi string    `gorm:"size:64" json:"name_hindi,omitempty"`
	Helpline  string    `gorm:"size:16" json:"helpline"`
	Email     string    `gorm:"size:128" json:"email,omitempty"`
	Services  string    `gorm:"size:1024" json:"services"`
	CreatedAt time.Time `json:"-"`
}

// EmergencyReport is an incident filed through the emergency desk.
type EmergencyReport struct {
	ID            uint      `gorm:"primaryKey" json:"-"`
	ReportID      string    `gorm:"uniqueIndex;size:32" json:"report_id"`
	CitizenID     *uint     `gorm:"index" json:"-"`
	EmergencyType string    `gorm:"size:64" json:"emergency_type"`
	Location      string    `gorm:"size:256" json:"location"`
	Description   string    `gorm:"size:2048" json:"description"`
	Severity      string    `gorm:"size:16" json:"severity"`
	ReporterName  string    `gorm:"size:128" json:"reporter_name"`
	ReporterPhone string    `gorm:"size:16" json:"reporter_phone"`
	Status        string    `gorm:"size:16" json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// Setting is one system configuration row.
type Setting struct {
	Key       string    `gorm:"primaryKey;size:64" json:"key"`
	Value     string    `gorm:"size:512" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EmergencyContact is a helpline directory entry. Not persisted.
type EmergencyContact struct {
	Service     string `json:"service"`
	Number      string `json:"number"`
	Description string `json:"description,omitempty"`
}

// LoginEvent is an audit row streamed to the analytics sink.
type LoginEvent struct {
	EventType  string    `json:"event_type"`
	CitizenID  string    `json:"citizen_id"`
	Phone      string    `json:"phone"`
	Bucket     int       `json:"bucket"`
	Success    bool      `json:"success"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ID helpers. The original scheme was a bare second-resolution timestamp,
// which collides under concurrent writes; a random suffix keeps the shape
// while making the IDs unique.

func NewCitizenID(now time.Time) string   { return stampedID("USER", now) }
func NewRequestID(now time.Time) string   { return stampedID("SR", now) }
func NewPaymentID(now time.Time) string   { return stampedID("PAY", now) }
func NewTxnID(now time.Time) string       { return stampedID("TXN", now) }
func NewDocumentID(now time.Time) string  { return stampedID("DOC", now) }
func NewEmergencyID(now time.Time) string { return stampedID("EMG", now) }

func stampedID(prefix string, now time.Time) string {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	var suffix int64
	if err == nil {
		suffix = n.Int64()
	}
	return fmt.Sprintf("%s%s%04d", prefix, now.Format("20060102150405"), suffix)
}
