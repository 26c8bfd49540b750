package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ib_reminder_service/internal/domain/campaign"
	"ib_reminder_service/internal/domain/reminder"
	"ib_reminder_service/internal/domain/user"
)

// CampaignInput is the editable part of a campaign.
type CampaignInput struct {
	IBID          string
	Name          string
	CampaignStart string
	CampaignEnd   string
	Offer         string
	Keypoints     string
	IBManager     string
}

type CampaignQuery struct {
	Search  string
	SortBy  string
	SortDir string // "asc" or "desc"; anything else is desc
	Page    int
}

// ExportQuery filters the export. Status is "all", "active" or "deactive".
type ExportQuery struct {
	Status   string
	DateFrom string
	DateTo   string
}

// CampaignView is a campaign with its status as of today.
type CampaignView struct {
	*campaign.Campaign
	Status string
}

type CampaignPage struct {
	Campaigns  []CampaignView
	TotalPages int
	TotalCount int
}

type CampaignService struct {
	campaignRepo campaign.Repository
	location     *time.Location
	now          func() time.Time
}

func NewCampaignService(cr campaign.Repository, location *time.Location) *CampaignService {
	if location == nil {
		location = time.Local
	}
	return &CampaignService{campaignRepo: cr, location: location, now: time.Now}
}

// Only Admin and IB users may change campaigns.
func requireCampaignEditor(caller *user.User) error {
	if caller == nil || (caller.Role != user.RoleAdmin && caller.Role != user.RoleIB) {
		return ErrNotAuthorized
	}
	return nil
}

func (s *CampaignService) today() string {
	return reminder.FormatDate(s.now().In(s.location))
}

func (s *CampaignService) view(list []*campaign.Campaign) []CampaignView {
	today := s.today()
	views := make([]CampaignView, 0, len(list))
	for _, c := range list {
		views = append(views, CampaignView{Campaign: c, Status: c.Status(today)})
	}
	return views
}

func (s *CampaignService) List(ctx context.Context, q CampaignQuery) (*CampaignPage, error) {
	page := normalizePage(q.Page)
	list, total, err := s.campaignRepo.List(ctx, campaign.ListFilter{
		Search:  q.Search,
		SortBy:  q.SortBy,
		SortAsc: strings.EqualFold(q.SortDir, "asc"),
		Limit:   PageSize,
		Offset:  (page - 1) * PageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	return &CampaignPage{Campaigns: s.view(list), TotalPages: totalPages(total), TotalCount: total}, nil
}

func (s *CampaignService) Create(ctx context.Context, caller *user.User, in CampaignInput) (*campaign.Campaign, error) {
	if err := requireCampaignEditor(caller); err != nil {
		return nil, err
	}
	c := &campaign.Campaign{CreatedBy: caller.Email}
	if err := applyCampaignInput(c, in); err != nil {
		return nil, err
	}
	if err := s.campaignRepo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}
	return c, nil
}

func (s *CampaignService) Update(ctx context.Context, caller *user.User, id int64, in CampaignInput) (*campaign.Campaign, error) {
	if err := requireCampaignEditor(caller); err != nil {
		return nil, err
	}
	c, err := s.campaignRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := applyCampaignInput(c, in); err != nil {
		return nil, err
	}
	if err := s.campaignRepo.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to update campaign: %w", err)
	}
	return c, nil
}

func (s *CampaignService) Delete(ctx context.Context, caller *user.User, id int64) error {
	if err := requireCampaignEditor(caller); err != nil {
		return err
	}
	return s.campaignRepo.Delete(ctx, id)
}

// Export returns every campaign matching q, newest start first.
func (s *CampaignService) Export(ctx context.Context, q ExportQuery) ([]CampaignView, error) {
	list, err := s.campaignRepo.ListForExport(ctx, campaign.ExportFilter{From: q.DateFrom, To: q.DateTo})
	if err != nil {
		return nil, fmt.Errorf("failed to export campaigns: %w", err)
	}
	views := s.view(list)

	var want string
	switch strings.ToLower(q.Status) {
	case "active":
		want = campaign.StatusActive
	case "deactive":
		want = campaign.StatusDeactive
	default:
		return views, nil
	}
	filtered := make([]CampaignView, 0, len(views))
	for _, v := range views {
		if v.Status == want {
			filtered = append(filtered, v)
		}
	}
	return filtered, nil
}

func applyCampaignInput(c *campaign.Campaign, in CampaignInput) error {
	in.IBID = strings.TrimSpace(in.IBID)
	if in.IBID == "" {
		return fmt.Errorf("%w: ib_id is required", ErrInvalidInput)
	}
	start, err := reminder.ParseDate(in.CampaignStart)
	if err != nil {
		return fmt.Errorf("%w: campaign_start must be YYYY-MM-DD", ErrInvalidInput)
	}
	end, err := reminder.ParseDate(in.CampaignEnd)
	if err != nil {
		return fmt.Errorf("%w: campaign_end must be YYYY-MM-DD", ErrInvalidInput)
	}
	if end.Before(start) {
		return fmt.Errorf("%w: campaign_end is before campaign_start", ErrInvalidInput)
	}

	c.IBID = in.IBID
	c.Name = strings.TrimSpace(in.Name)
	c.CampaignStart = reminder.FormatDate(start)
	c.CampaignEnd = reminder.FormatDate(end)
	c.Offer = in.Offer
	c.Keypoints = in.Keypoints
	c.IBManager = strings.TrimSpace(in.IBManager)
	return nil
}
