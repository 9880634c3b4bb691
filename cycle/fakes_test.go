package cycle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"outreachflow/escalate"
	"outreachflow/gateway"
	"outreachflow/outreach"
	"outreachflow/prospect"
	"outreachflow/safety"
	"outreachflow/signals"
)

type memCampaigns struct {
	mu     sync.Mutex
	byName map[string]prospect.Campaign
}

func newMemCampaigns(campaigns ...prospect.Campaign) *memCampaigns {
	m := &memCampaigns{byName: make(map[string]prospect.Campaign)}
	for _, c := range campaigns {
		m.byName[c.Name] = c
	}
	return m
}

func (m *memCampaigns) Create(ctx context.Context, c prospect.Campaign) (prospect.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byName[c.Name]; ok {
		return prospect.Campaign{}, prospect.ErrDuplicateCampaign
	}
	if c.ID == "" {
		c.ID = "camp-" + c.Name
	}
	m.byName[c.Name] = c
	return c, nil
}

func (m *memCampaigns) GetByID(ctx context.Context, id string) (prospect.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.byName {
		if c.ID == id {
			return c, nil
		}
	}
	return prospect.Campaign{}, prospect.ErrCampaignNotFound
}

func (m *memCampaigns) GetByName(ctx context.Context, name string) (prospect.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byName[name]
	if !ok {
		return prospect.Campaign{}, prospect.ErrCampaignNotFound
	}
	return c, nil
}

func (m *memCampaigns) ListActive(ctx context.Context) ([]prospect.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []prospect.Campaign
	for _, c := range m.byName {
		if c.Active {
			out = append(out, c)
		}
	}
	return out, nil
}

type memLeads struct {
	mu   sync.Mutex
	byID map[string]prospect.Lead
	seq  int
}

func newMemLeads(leads ...prospect.Lead) *memLeads {
	m := &memLeads{byID: make(map[string]prospect.Lead)}
	for _, l := range leads {
		m.byID[l.ID] = l
	}
	return m
}

func (m *memLeads) snapshot(id string) prospect.Lead {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id]
}

func (m *memLeads) Create(ctx context.Context, l prospect.Lead) (prospect.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.CampaignID == l.CampaignID && l.Email != "" &&
			strings.EqualFold(existing.Email, l.Email) {
			return prospect.Lead{}, prospect.ErrDuplicateLead
		}
	}
	m.seq++
	if l.ID == "" {
		l.ID = fmt.Sprintf("lead-%03d", m.seq)
	}
	if l.Status == "" {
		l.Status = prospect.StatusNew
	}
	l.CreatedAt = time.Now()
	l.UpdatedAt = l.CreatedAt
	m.byID[l.ID] = l
	return l, nil
}

func (m *memLeads) GetByID(ctx context.Context, id string) (prospect.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.byID[id]
	if !ok {
		return prospect.Lead{}, prospect.ErrLeadNotFound
	}
	return l, nil
}

func (m *memLeads) ListEligible(ctx context.Context, campaignID string, minScore float64, limit int) ([]prospect.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []prospect.Lead
	for _, l := range m.byID {
		if l.CampaignID == campaignID && l.Status == prospect.StatusNew && l.Score >= minScore {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memLeads) ListFollowupDue(ctx context.Context, campaignID string, before time.Time, maxStep, limit int) ([]prospect.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []prospect.Lead
	for _, l := range m.byID {
		if l.CampaignID != campaignID || l.Status != prospect.StatusContacted {
			continue
		}
		if l.LastOutreachAt == nil || !l.LastOutreachAt.Before(before) {
			continue
		}
		if l.SequenceStep >= maxStep {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memLeads) ListByStatus(ctx context.Context, campaignID string, status prospect.LeadStatus, limit int) ([]prospect.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []prospect.Lead
	for _, l := range m.byID {
		if l.CampaignID == campaignID && l.Status == status {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memLeads) FindByAddress(ctx context.Context, campaignID string, ch outreach.Channel, address string) (prospect.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.byID {
		if l.CampaignID != campaignID {
			continue
		}
		candidate := l.Email
		if ch == outreach.ChannelLinkedIn || ch == outreach.ChannelTwitter {
			candidate = l.SocialHandle
		}
		if candidate != "" && strings.EqualFold(candidate, address) {
			return l, nil
		}
	}
	return prospect.Lead{}, prospect.ErrLeadNotFound
}

func (m *memLeads) MarkContacted(ctx context.Context, leadID string, step int, at time.Time) (prospect.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.byID[leadID]
	if !ok {
		return prospect.Lead{}, prospect.ErrLeadNotFound
	}
	if l.Status != prospect.StatusNew && l.Status != prospect.StatusContacted {
		return prospect.Lead{}, prospect.ErrInvalidTransition
	}
	l.Status = prospect.StatusContacted
	if step > l.SequenceStep {
		l.SequenceStep = step
	}
	l.LastOutreachAt = &at
	l.UpdatedAt = at
	m.byID[leadID] = l
	return l, nil
}

func (m *memLeads) UpdateStatus(ctx context.Context, leadID string, status prospect.LeadStatus) (prospect.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.byID[leadID]
	if !ok {
		return prospect.Lead{}, prospect.ErrLeadNotFound
	}
	if !prospect.CanTransition(l.Status, status) {
		return prospect.Lead{}, prospect.ErrInvalidTransition
	}
	l.Status = status
	l.UpdatedAt = time.Now()
	m.byID[leadID] = l
	return l, nil
}

type memSignals struct {
	mu      sync.Mutex
	nextID  int64
	signals []signals.Signal
}

func newMemSignals(sigs ...signals.Signal) *memSignals {
	m := &memSignals{}
	for _, s := range sigs {
		m.nextID++
		s.ID = m.nextID
		m.signals = append(m.signals, s)
	}
	return m
}

func (m *memSignals) Insert(ctx context.Context, s signals.Signal) (signals.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	s.ID = m.nextID
	m.signals = append(m.signals, s)
	return s, nil
}

func (m *memSignals) ListUnprocessed(ctx context.Context, limit int) ([]signals.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []signals.Signal
	for _, s := range m.signals {
		if !s.Processed {
			out = append(out, s)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memSignals) MarkProcessed(ctx context.Context, id int64, matchedLeadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.signals {
		if m.signals[i].ID == id {
			m.signals[i].Processed = true
			m.signals[i].MatchedLeadID = matchedLeadID
			return nil
		}
	}
	return errors.New("signal not found")
}

func (m *memSignals) unprocessedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, s := range m.signals {
		if !s.Processed {
			count++
		}
	}
	return count
}

type memSettings struct {
	settings safety.Settings
	loadErr  error
}

func (m *memSettings) Load(ctx context.Context) (safety.Settings, error) {
	if m.loadErr != nil {
		return safety.Settings{}, m.loadErr
	}
	return m.settings, nil
}

func (m *memSettings) Save(ctx context.Context, s safety.Settings) error {
	m.settings = s
	return nil
}

func (m *memSettings) AddDNC(ctx context.Context, emails, leadIDs []string) (safety.Settings, error) {
	m.settings.DNCEmails = append(m.settings.DNCEmails, emails...)
	m.settings.DNCLeadIDs = append(m.settings.DNCLeadIDs, leadIDs...)
	return m.settings, nil
}

type capturePublisher struct {
	mu       sync.Mutex
	handoffs []escalate.Handoff
	err      error
}

func (p *capturePublisher) PublishHandoff(ctx context.Context, h escalate.Handoff) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.handoffs = append(p.handoffs, h)
	return nil
}

type staticSource struct {
	leads []prospect.Lead
	err   error
}

func (s *staticSource) FetchLeads(ctx context.Context, campaign prospect.Campaign, limit int) ([]prospect.Lead, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.leads) > limit {
		return s.leads[:limit], nil
	}
	return s.leads, nil
}

type failingGenerator struct{ err error }

func (g failingGenerator) Generate(context.Context, outreach.LeadContext, outreach.CampaignContext, outreach.SequenceConfig) ([]outreach.Message, error) {
	return nil, g.err
}

type scriptedGateway struct {
	mu     sync.Mutex
	result gateway.Result
	err    error
	calls  int
}

func (g *scriptedGateway) Deliver(ctx context.Context, msg outreach.Message) (gateway.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.result, g.err
}

func (g *scriptedGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}
