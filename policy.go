package apigen

import "fmt"

// Policy declares, per entity, which roles may read or write all records and
// which roles may read or write only records they own. A policy is immutable
// once declared and shared read-only by every wrapper built for its entity.
type Policy struct {
	// ReadAll lists roles that may read every record.
	ReadAll []string `json:"read_all,omitempty"`

	// WriteAll lists roles that may create, update, and remove every record.
	WriteAll []string `json:"write_all,omitempty"`

	// ReadSelf lists roles that may read only records they own.
	ReadSelf []string `json:"read_self,omitempty"`

	// WriteSelf lists roles that may mutate only records they own.
	WriteSelf []string `json:"write_self,omitempty"`

	// OwnerField names the record field compared against the claim's
	// subject id to determine ownership. Required when either self set is
	// non-empty.
	OwnerField string `json:"owner_field,omitempty"`
}

// Validate checks the policy's structural invariant: self scoping is
// meaningless without an owner field. Wrapper constructors call this once at
// build time so a configuration defect surfaces before traffic is served.
func (p *Policy) Validate() error {
	if p == nil {
		return nil
	}
	if p.OwnerField == "" && (len(p.ReadSelf) > 0 || len(p.WriteSelf) > 0) {
		return fmt.Errorf("%w: self access declared without an owner field", ErrConfiguration)
	}
	return nil
}

// Open reports whether the policy places no restriction on any operation.
// Wrappers treat an open (or nil) policy as a pass-through.
func (p *Policy) Open() bool {
	return p == nil ||
		(len(p.ReadAll) == 0 && len(p.WriteAll) == 0 &&
			len(p.ReadSelf) == 0 && len(p.WriteSelf) == 0)
}

// CanReadAll reports whether the claim's roles grant unrestricted reads.
func (p *Policy) CanReadAll(c *Claim) bool { return p != nil && c != nil && intersects(c.Roles, p.ReadAll) }

// CanWriteAll reports whether the claim's roles grant unrestricted writes.
func (p *Policy) CanWriteAll(c *Claim) bool {
	return p != nil && c != nil && intersects(c.Roles, p.WriteAll)
}

// CanReadSelf reports whether the claim's roles grant reads of owned records.
func (p *Policy) CanReadSelf(c *Claim) bool {
	return p != nil && c != nil && intersects(c.Roles, p.ReadSelf)
}

// CanWriteSelf reports whether the claim's roles grant writes of owned records.
func (p *Policy) CanWriteSelf(c *Claim) bool {
	return p != nil && c != nil && intersects(c.Roles, p.WriteSelf)
}

// intersects reports whether any claimed role appears in the required set.
// Matching is exact-string with set semantics: order and duplicates are
// irrelevant, and a single match is sufficient.
func intersects(claimed, required []string) bool {
	if len(claimed) == 0 || len(required) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(required))
	for _, r := range required {
		set[r] = struct{}{}
	}
	for _, r := range claimed {
		if _, ok := set[r]; ok {
			return true
		}
	}
	return false
}
