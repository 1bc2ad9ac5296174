package domain

// Record is one stored embedding entry: the chunk text kept alongside the
// vector for display and lexical scoring, plus access attributes copied from
// the owning document at embedding time. The access fields are snapshots, not
// live references; they change only when the document is re-embedded.
type Record struct {
	DocumentID    string         `json:"document_id"`
	Filename      string         `json:"filename"`
	Text          string         `json:"text"`
	ChunkIndex    int            `json:"chunk_index"`
	StartChar     int            `json:"start_char"`
	EndChar       int            `json:"end_char"`
	SectionHeader string         `json:"section_header,omitempty"`
	HasSection    bool           `json:"has_section"`
	Access        AccessSnapshot `json:"access"`
}

// AccessSnapshot holds the denormalized access-control attributes of a record.
type AccessSnapshot struct {
	Visibility     string `json:"visibility"`
	InstitutionID  string `json:"institution_id"`
	ApprovalStatus string `json:"approval_status"`
}

// AccessFilter restricts a centralized-index search to records the caller may
// see. All set fields must match; zero fields match everything. The filter is
// applied as a pre-filter: records failing the predicate are never candidates
// and do not consume the result budget.
type AccessFilter struct {
	Visibilities   []string // allowed visibility levels, empty = any
	InstitutionID  string   // required owning institution, empty = any
	ApprovalStatus string   // required approval status, empty = any
}

// Match reports whether a record's access snapshot satisfies the filter.
// A nil filter matches everything.
func (f *AccessFilter) Match(a AccessSnapshot) bool {
	if f == nil {
		return true
	}
	if len(f.Visibilities) > 0 {
		ok := false
		for _, v := range f.Visibilities {
			if a.Visibility == v {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.InstitutionID != "" && a.InstitutionID != f.InstitutionID {
		return false
	}
	if f.ApprovalStatus != "" && a.ApprovalStatus != f.ApprovalStatus {
		return false
	}
	return true
}
