package campaign

import "context"

const (
	StatusActive   = "Active"
	StatusDeactive = "Deactive"

	DefaultManager = "Mani"
)

// Campaign is a marketing offer run for an IB over a date range.
type Campaign struct {
	ID            int64
	IBID          string
	Name          string
	CampaignStart string // YYYY-MM-DD
	CampaignEnd   string // YYYY-MM-DD
	Offer         string
	Keypoints     string
	IBManager     string
	CreatedBy     string
	CreatedAt     string
}

// Status is Active while today lies within the campaign range.
func (c *Campaign) Status(today string) string {
	if c.CampaignStart <= today && today <= c.CampaignEnd {
		return StatusActive
	}
	return StatusDeactive
}

// Sortable columns for ListFilter.SortBy.
var SortColumns = map[string]bool{
	"campaign_start": true,
	"campaign_end":   true,
	"created_at":     true,
	"ib_id":          true,
}

type ListFilter struct {
	Search  string
	SortBy  string // one of SortColumns; anything else falls back to created_at
	SortAsc bool
	Limit   int
	Offset  int
}

// ExportFilter bounds campaign_start; empty bounds are open.
type ExportFilter struct {
	From string
	To   string
}

type Repository interface {
	Create(ctx context.Context, c *Campaign) error
	GetByID(ctx context.Context, id int64) (*Campaign, error)
	Update(ctx context.Context, c *Campaign) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, filter ListFilter) ([]*Campaign, int, error)
	ListForExport(ctx context.Context, filter ExportFilter) ([]*Campaign, error)
}
