package domain

// UsageTag names the counter a caller must decrement after a successful call.
type UsageTag string

const (
	TagNone                 UsageTag = ""
	TagFreeTrial            UsageTag = "free_trial"
	TagEntitlementUnlimited UsageTag = "entitlement_unlimited"
	TagEntitlementLimited   UsageTag = "entitlement_limited"
)

const (
	ReasonNoEntitlement = "no entitlement or free trial"
	ReasonLimitExceeded = "usage limit exceeded"
)

// Decision is the admission result for one metered request.
type Decision struct {
	Allowed       bool     `json:"allowed"`
	Reason        string   `json:"reason,omitempty"`
	Tag           UsageTag `json:"tag,omitempty"`
	EntitlementID string   `json:"entitlementId,omitempty"`
}

// Allow admits a request with the given decrement tag.
func Allow(tag UsageTag, entitlementID string) Decision {
	return Decision{Allowed: true, Tag: tag, EntitlementID: entitlementID}
}

// Deny refuses a request.
func Deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// Err returns the Forbidden error for a denial, nil otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return ErrForbidden(d.Reason)
}

// Consumes reports whether settling the decision decrements a counter.
func (d Decision) Consumes() bool {
	return d.Allowed && (d.Tag == TagFreeTrial || d.Tag == TagEntitlementLimited)
}
