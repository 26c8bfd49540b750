package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"ib_reminder_service/internal/domain/campaign"
)

var ErrCampaignNotFound = fmt.Errorf("campaign not found")

const campaignColumns = `id, ib_id, name, campaign_start, campaign_end, offer, keypoints, ib_manager, created_by, created_at`

type CampaignRepository struct {
	db *Conn
}

func NewCampaignRepository(db *Conn) *CampaignRepository {
	return &CampaignRepository{db: db}
}

func scanCampaign(row rowScanner) (*campaign.Campaign, error) {
	c := &campaign.Campaign{}
	err := row.Scan(&c.ID, &c.IBID, &c.Name, &c.CampaignStart, &c.CampaignEnd, &c.Offer, &c.Keypoints,
		&c.IBManager, &c.CreatedBy, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func scanCampaigns(rows *sql.Rows) ([]*campaign.Campaign, error) {
	campaigns := make([]*campaign.Campaign, 0)
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning campaign row: %w", err)
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating campaign rows: %w", err)
	}
	return campaigns, nil
}

func (r *CampaignRepository) Create(ctx context.Context, c *campaign.Campaign) error {
	if c.CreatedAt == "" {
		c.CreatedAt = now()
	}
	if strings.TrimSpace(c.IBManager) == "" {
		c.IBManager = campaign.DefaultManager
	}
	query := `INSERT INTO ib_campaigns (ib_id, name, campaign_start, campaign_end, offer, keypoints, ib_manager, created_by, created_at)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
               RETURNING id`
	err := r.db.QueryRowContext(ctx, query, c.IBID, c.Name, c.CampaignStart, c.CampaignEnd, c.Offer, c.Keypoints,
		c.IBManager, c.CreatedBy, c.CreatedAt).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("error creating campaign: %w", err)
	}
	return nil
}

func (r *CampaignRepository) GetByID(ctx context.Context, id int64) (*campaign.Campaign, error) {
	c, err := scanCampaign(r.db.QueryRowContext(ctx, `SELECT `+campaignColumns+` FROM ib_campaigns WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCampaignNotFound
		}
		return nil, fmt.Errorf("error getting campaign by ID: %w", err)
	}
	return c, nil
}

func (r *CampaignRepository) Update(ctx context.Context, c *campaign.Campaign) error {
	if strings.TrimSpace(c.IBManager) == "" {
		c.IBManager = campaign.DefaultManager
	}
	query := `UPDATE ib_campaigns
               SET ib_id = $1, name = $2, campaign_start = $3, campaign_end = $4, offer = $5, keypoints = $6, ib_manager = $7
               WHERE id = $8`
	res, err := r.db.ExecContext(ctx, query, c.IBID, c.Name, c.CampaignStart, c.CampaignEnd, c.Offer, c.Keypoints,
		c.IBManager, c.ID)
	if err != nil {
		return fmt.Errorf("error updating campaign: %w", err)
	}
	return requireRow(res, ErrCampaignNotFound)
}

func (r *CampaignRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM ib_campaigns WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("error deleting campaign: %w", err)
	}
	return requireRow(res, ErrCampaignNotFound)
}

func (r *CampaignRepository) List(ctx context.Context, filter campaign.ListFilter) ([]*campaign.Campaign, int, error) {
	where := ""
	args := make([]any, 0, 6)
	if s := strings.TrimSpace(filter.Search); s != "" {
		pattern := "%" + strings.ToLower(s) + "%"
		where = ` WHERE LOWER(ib_id) LIKE $1 OR LOWER(name) LIKE $2 OR LOWER(ib_manager) LIKE $3 OR LOWER(offer) LIKE $4`
		args = append(args, pattern, pattern, pattern, pattern)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ib_campaigns`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("error counting campaigns: %w", err)
	}

	// Sort column is whitelisted, so it is safe to interpolate.
	sortBy := filter.SortBy
	if !campaign.SortColumns[sortBy] {
		sortBy = "created_at"
	}
	dir := "DESC"
	if filter.SortAsc {
		dir = "ASC"
	}
	n := len(args)
	query := `SELECT ` + campaignColumns + ` FROM ib_campaigns` + where +
		fmt.Sprintf(` ORDER BY %s %s, id %s LIMIT $%d OFFSET $%d`, sortBy, dir, dir, n+1, n+2)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("error listing campaigns: %w", err)
	}
	defer rows.Close()
	campaigns, err := scanCampaigns(rows)
	if err != nil {
		return nil, 0, err
	}
	return campaigns, total, nil
}

func (r *CampaignRepository) ListForExport(ctx context.Context, filter campaign.ExportFilter) ([]*campaign.Campaign, error) {
	conds := make([]string, 0, 2)
	args := make([]any, 0, 2)
	if filter.From != "" {
		args = append(args, filter.From)
		conds = append(conds, fmt.Sprintf("campaign_start >= $%d", len(args)))
	}
	if filter.To != "" {
		args = append(args, filter.To)
		conds = append(conds, fmt.Sprintf("campaign_start <= $%d", len(args)))
	}
	query := `SELECT ` + campaignColumns + ` FROM ib_campaigns`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY campaign_start DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing campaigns for export: %w", err)
	}
	defer rows.Close()
	return scanCampaigns(rows)
}
