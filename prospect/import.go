package prospect

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ImportResult summarizes one CSV intake run.
type ImportResult struct {
	Total    int      `json:"total"`
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

// ImportParams describe one CSV intake run. CampaignName is created on
// first use; Niche only applies to that first creation.
type ImportParams struct {
	Path         string
	CampaignName string
	Niche        string
}

// Importer reads lead rows from CSV files into a campaign.
type Importer struct {
	campaigns CampaignRepository
	leads     LeadRepository
}

func NewImporter(campaigns CampaignRepository, leads LeadRepository) *Importer {
	return &Importer{campaigns: campaigns, leads: leads}
}

// EnsureCampaign returns the campaign with the given name, creating it
// as active if it does not exist yet.
func (i *Importer) EnsureCampaign(ctx context.Context, name, niche string) (Campaign, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Campaign{}, fmt.Errorf("prospect: missing campaign name")
	}
	c, err := i.campaigns.GetByName(ctx, name)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrCampaignNotFound) {
		return Campaign{}, err
	}
	created, err := i.campaigns.Create(ctx, Campaign{Name: name, Niche: niche, Active: true})
	if err != nil {
		if errors.Is(err, ErrDuplicateCampaign) {
			return i.campaigns.GetByName(ctx, name)
		}
		return Campaign{}, err
	}
	return created, nil
}

// Import reads the CSV at params.Path into params.CampaignName. The file
// must carry a header row; recognized columns are name, company, role,
// email, social_handle, contact_form_url, score and tags (other columns
// are ignored). Rows without any contact field are skipped, duplicate
// emails within the campaign are skipped, malformed rows are reported in
// the result without aborting the run.
func (i *Importer) Import(ctx context.Context, params ImportParams) (ImportResult, error) {
	if params.Path == "" {
		return ImportResult{}, fmt.Errorf("prospect: missing csv path")
	}

	f, err := os.Open(params.Path)
	if err != nil {
		return ImportResult{}, fmt.Errorf("prospect: open csv: %w", err)
	}
	defer f.Close()

	campaign, err := i.EnsureCampaign(ctx, params.CampaignName, params.Niche)
	if err != nil {
		return ImportResult{}, err
	}

	return i.ImportFrom(ctx, campaign, f)
}

// ImportFrom ingests CSV rows from r into an already-resolved campaign.
func (i *Importer) ImportFrom(ctx context.Context, campaign Campaign, r io.Reader) (ImportResult, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return ImportResult{}, fmt.Errorf("prospect: read csv header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for idx, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = idx
	}

	var result ImportResult
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			result.Total++
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		result.Total++

		lead, err := leadFromRecord(campaign.ID, cols, record)
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}

		if _, err := i.leads.Create(ctx, lead); err != nil {
			if errors.Is(err, ErrDuplicateLead) {
				result.Skipped++
				continue
			}
			return result, fmt.Errorf("prospect: import line %d: %w", line, err)
		}
		result.Imported++
	}

	return result, nil
}

func leadFromRecord(campaignID string, cols map[string]int, record []string) (Lead, error) {
	field := func(name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	lead := Lead{
		CampaignID:     campaignID,
		Name:           field("name"),
		Company:        field("company"),
		Role:           field("role"),
		Email:          strings.ToLower(field("email")),
		SocialHandle:   field("social_handle"),
		ContactFormURL: field("contact_form_url"),
		Status:         StatusNew,
	}

	if lead.Email == "" && lead.SocialHandle == "" && lead.ContactFormURL == "" {
		return Lead{}, errors.New("no contact field")
	}

	if raw := field("score"); raw != "" {
		score, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Lead{}, fmt.Errorf("bad score %q", raw)
		}
		lead.Score = score
	}
	if raw := field("tags"); raw != "" {
		for _, tag := range strings.Split(raw, ";") {
			if tag = strings.TrimSpace(tag); tag != "" {
				lead.Tags = append(lead.Tags, tag)
			}
		}
	}

	return lead, nil
}
