package safety

import "strings"

// Policy decides whether a lead or address may be contacted at all.
// Pure predicate over the DNC and blocked-domain sets; build one per
// cycle from the settings loaded at cycle start.
type Policy struct {
	dncLeadIDs     map[string]struct{}
	dncAddresses   map[string]struct{}
	blockedDomains map[string]struct{}
}

func NewPolicy(s Settings) *Policy {
	return &Policy{
		dncLeadIDs:     lowerSet(s.DNCLeadIDs),
		dncAddresses:   lowerSet(s.DNCEmails),
		blockedDomains: lowerSet(s.BlockedDomains),
	}
}

// IsContactAllowed checks the DNC rules in order: lead id, then address,
// then the address's domain. The first match disallows; otherwise the
// contact is allowed. An empty address skips the address rules.
func (p *Policy) IsContactAllowed(leadID, address string) bool {
	if _, ok := p.dncLeadIDs[strings.ToLower(leadID)]; ok {
		return false
	}
	if address == "" {
		return true
	}
	lowered := strings.ToLower(address)
	if _, ok := p.dncAddresses[lowered]; ok {
		return false
	}
	if at := strings.LastIndex(lowered, "@"); at >= 0 && at < len(lowered)-1 {
		if _, ok := p.blockedDomains[lowered[at+1:]]; ok {
			return false
		}
	}
	return true
}

func lowerSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		set[strings.ToLower(v)] = struct{}{}
	}
	return set
}
