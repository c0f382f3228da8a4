package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/store"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/tenant"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrReportNotFound  = errors.New("report not found")
	ErrInvalidReportID = errors.New("content_id must be a listing id")
)

var BannedWords = []string{
	"fuck", "fucking", "fucker", "shit", "shitty", "bullshit",
	"asshole", "bastard", "bitch", "cunt",
	"nigger", "nigga", "chink", "spic", "kike", "faggot", "fag",
	"retard", "retarded", "tranny",
	"porn", "porno", "nude", "nudes",
	"scam", "scammer", "phishing", "malware",
	"counterfeit", "replica",
}

const (
	ReasonInappropriate = "inappropriate_language"
	ReasonURL           = "url_not_allowed"
	ReasonContactInfo   = "contact_info_not_allowed"
	ReasonSpam          = "spam_detected"
	ReasonExcessiveCaps = "excessive_caps"
)

var rejectionMessages = map[string]string{
	ReasonInappropriate: "Your listing contains inappropriate language.",
	ReasonURL:           "Links to other sites are not allowed in listings.",
	ReasonContactInfo:   "Keep phone numbers and emails out of the listing. Buyers reach you through the marketplace.",
	ReasonSpam:          "Your listing looks like spam.",
	ReasonExcessiveCaps: "Please avoid using excessive capital letters.",
}

// ContentFilter screens user text. The patterns are compiled once and the
// filter is safe for concurrent use.
type ContentFilter struct {
	bannedWords []*regexp.Regexp
	url         *regexp.Regexp
	email       *regexp.Regexp
	phone       *regexp.Regexp
	allCaps     *regexp.Regexp
}

func NewContentFilter() *ContentFilter {
	f := &ContentFilter{
		bannedWords: make([]*regexp.Regexp, 0, len(BannedWords)),
		url:         regexp.MustCompile(`(?i)(https?://\S+|www\.\S+\.\S+)`),
		email:       regexp.MustCompile(`(?i)\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,}\b`),
		phone:       regexp.MustCompile(`(\+?\d{1,3}[-.\s]?)?\d{3}[-.\s]?\d{3}[-.\s]?\d{4}|\(\d{3}\)\s*\d{3}[-.\s]?\d{4}`),
		allCaps:     regexp.MustCompile(`[A-Z]{5,}`),
	}
	for _, word := range BannedWords {
		if re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`); err == nil {
			f.bannedWords = append(f.bannedWords, re)
		}
	}
	return f
}

// Check returns false and a reason code when text breaks a rule.
func (f *ContentFilter) Check(text string) (bool, string) {
	if text == "" {
		return true, ""
	}
	for _, re := range f.bannedWords {
		if re.MatchString(text) {
			return false, ReasonInappropriate
		}
	}
	if f.url.MatchString(text) {
		return false, ReasonURL
	}
	if f.email.MatchString(text) || f.phone.MatchString(text) {
		return false, ReasonContactInfo
	}
	if hasRepeatedRun(text) {
		return false, ReasonSpam
	}
	if len(f.allCaps.FindAllString(text, -1)) > 2 {
		return false, ReasonExcessiveCaps
	}
	return true, ""
}

// hasRepeatedRun reports four or more of the same letter or punctuation
// mark in a row. RE2 has no backreferences so this is done by hand.
func hasRepeatedRun(text string) bool {
	var prev rune
	run := 0
	for _, r := range strings.ToLower(text) {
		repeatable := (r >= 'a' && r <= 'z') || r == '!' || r == '?' || r == '.'
		if repeatable && r == prev {
			run++
			if run >= 4 {
				return true
			}
			continue
		}
		prev = r
		run = 1
	}
	return false
}

type ModerationService struct {
	db          *gorm.DB
	filter      *ContentFilter
	submissions SubmissionRepository
}

func NewModerationService(db *gorm.DB, submissions SubmissionRepository) *ModerationService {
	return &ModerationService{db: db, filter: NewContentFilter(), submissions: submissions}
}

func (s *ModerationService) FilterContent(text string) (bool, string) {
	return s.filter.Check(text)
}

func (s *ModerationService) GetRejectionMessage(reason string) string {
	if msg, ok := rejectionMessages[reason]; ok {
		return msg
	}
	return "Your listing does not meet our content guidelines."
}

func (s *ModerationService) CreateReport(ctx context.Context, marketID string, reporterID uuid.UUID, req *dto.CreateReportRequest) (*models.Report, error) {
	if req.ContentType == models.ReportContentListing {
		if _, err := uuid.Parse(req.ContentID); err != nil {
			return nil, ErrInvalidReportID
		}
	}

	report := models.Report{
		ID:          uuid.New(),
		MarketID:    marketID,
		ReporterID:  reporterID,
		ContentType: req.ContentType,
		ContentID:   req.ContentID,
		Reason:      strings.TrimSpace(req.Reason),
		Status:      "pending",
	}
	if err := s.db.WithContext(ctx).Create(&report).Error; err != nil {
		return nil, fmt.Errorf("failed to create report: %w", err)
	}
	return &report, nil
}

func (s *ModerationService) ListReports(ctx context.Context, marketID string, status string, limit, offset int) ([]models.Report, int64, error) {
	var reports []models.Report
	var total int64

	query := s.db.WithContext(ctx).Model(&models.Report{}).Scopes(tenant.ForMarket(marketID))
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&reports).Error; err != nil {
		return nil, 0, err
	}
	return reports, total, nil
}

// ActionReport records the admin's verdict. Actioning a listing report
// takes the listing down.
func (s *ModerationService) ActionReport(ctx context.Context, marketID string, reportID uuid.UUID, req *dto.ActionReportRequest) error {
	var report models.Report
	if err := s.db.WithContext(ctx).Scopes(tenant.ForMarket(marketID)).First(&report, "id = ?", reportID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrReportNotFound
		}
		return err
	}

	if err := s.db.WithContext(ctx).Model(&report).Updates(map[string]interface{}{
		"status":     req.Status,
		"admin_note": req.AdminNote,
	}).Error; err != nil {
		return err
	}

	if req.Status != "actioned" || report.ContentType != models.ReportContentListing {
		return nil
	}
	listingID, err := uuid.Parse(report.ContentID)
	if err != nil {
		return nil
	}
	note := "Removed after a report"
	if req.AdminNote != "" {
		note = req.AdminNote
	}
	err = s.submissions.SetStatus(ctx, marketID, listingID, models.SubmissionRejected, note)
	if errors.Is(err, store.ErrNotFound) {
		slog.Warn("reported listing no longer exists", "market_id", marketID, "submission_id", listingID.String())
		return nil
	}
	return err
}

// ReviewQueue lists the market's listings awaiting review.
func (s *ModerationService) ReviewQueue(ctx context.Context, marketID string, limit, offset int) ([]models.ProductSubmission, int64, error) {
	return s.submissions.ListByStatus(ctx, marketID, models.SubmissionPending, limit, offset)
}

// ReviewSubmission approves or rejects a pending listing.
func (s *ModerationService) ReviewSubmission(ctx context.Context, marketID string, id uuid.UUID, req *dto.ReviewSubmissionRequest) error {
	err := s.submissions.SetStatus(ctx, marketID, id, req.Status, req.Note)
	if errors.Is(err, store.ErrNotFound) {
		return ErrSubmissionNotFound
	}
	if err != nil {
		return err
	}
	slog.Info("submission reviewed", "market_id", marketID, "submission_id", id.String(), "status", req.Status, "action", "submission.review")
	return nil
}
