package ahjo

import (
	"fmt"
	"time"

	"ahjosync/internal/domain"
)

// Wire shapes mirror the remote JSON. The remote system capitalizes field
// names and leaves many of them empty; decoding enforces the required
// ones and maps the rest into domain values.

type wireCase struct {
	CaseID              string       `json:"CaseID"`
	CaseIDLabel         string       `json:"CaseIDLabel"`
	Title               string       `json:"Title"`
	Created             string       `json:"Created"`
	Acquired            string       `json:"Acquired"`
	ClassificationCode  string       `json:"ClassificationCode"`
	ClassificationTitle string       `json:"ClassificationTitle"`
	Status              string       `json:"Status"`
	Language            string       `json:"Language"`
	PublicityClass      string       `json:"PublicityClass"`
	SecurityReasons     []string     `json:"SecurityReasons"`
	Handlings           []wireStep   `json:"Handlings"`
	Records             []wireRecord `json:"Records"`
}

type wireStep struct {
	Sequence        int      `json:"Sequence"`
	SectorName      string   `json:"SectorName"`
	SectorID        string   `json:"SectorID"`
	Status          string   `json:"Status"`
	Created         string   `json:"Created"`
	NearestDeadline string   `json:"NearestDeadline"`
	Links           []string `json:"Links"`
}

type wireRecord struct {
	Title            string `json:"Title"`
	AttachmentNumber *int   `json:"AttachmentNumber"`
	PublicityClass   string `json:"PublicityClass"`
	SecurityReason   string `json:"SecurityReason"`
	VersionSeriesID  string `json:"VersionSeriesId"`
	NativeID         string `json:"NativeId"`
	Type             string `json:"Type"`
	FileURI          string `json:"FileURI"`
	Language         string `json:"Language"`
	PersonalData     string `json:"PersonalData"`
	Issued           string `json:"Issued"`
}

type wireOrgInfo struct {
	ID        string `json:"ID"`
	Name      string `json:"Name"`
	Existing  string `json:"Existing"`
	Type      string `json:"Type"`
	Formed    string `json:"Formed"`
	Dissolved string `json:"Dissolved"`
}

type wireOrganization struct {
	Organization wireOrgInfo   `json:"Organization"`
	Parents      []wireOrgInfo `json:"Parents"`
	Children     []wireOrgInfo `json:"Children"`
	Sectors      []string      `json:"Sectors"`
}

type wireDecisionmaker struct {
	wireOrganization
	Composition []map[string]any `json:"Composition"`
	Language    string           `json:"Language"`
}

type wireTrustee struct {
	ID            string                `json:"ID"`
	Name          string                `json:"Name"`
	CouncilGroup  string                `json:"CouncilGroup"`
	Initiatives   []wireTrusteeDocument `json:"Initiatives"`
	Resolutions   []wireTrusteeDocument `json:"Resolutions"`
	Chairmanships []wireChairmanship    `json:"Chairmanships"`
}

type wireTrusteeDocument struct {
	Title string `json:"Title"`
	URI   string `json:"URI"`
}

type wireChairmanship struct {
	Position         string `json:"Position"`
	OrganizationID   string `json:"OrganizationID"`
	OrganizationName string `json:"OrganizationName"`
}

// The remote system has emitted both full RFC3339 and a bare local layout
// over the years.
var timeLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

func parseTime(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return &ts, nil
		}
	}
	return nil, fmt.Errorf("unrecognized timestamp %q", raw)
}

func (w wireCase) toDomain(op string) (domain.Case, error) {
	if w.CaseID == "" {
		return domain.Case{}, errorf(KindDecode, op, "case missing CaseID")
	}
	if w.Title == "" {
		return domain.Case{}, errorf(KindDecode, op, "case %s missing Title", w.CaseID)
	}
	created, err := parseTime(w.Created)
	if err != nil {
		return domain.Case{}, newError(KindDecode, op, err)
	}
	acquired, err := parseTime(w.Acquired)
	if err != nil {
		return domain.Case{}, newError(KindDecode, op, err)
	}
	c := domain.Case{
		ID:                  w.CaseID,
		Label:               w.CaseIDLabel,
		Title:               w.Title,
		Created:             created,
		Acquired:            acquired,
		ClassificationCode:  w.ClassificationCode,
		ClassificationTitle: w.ClassificationTitle,
		Status:              w.Status,
		Language:            w.Language,
		PublicityClass:      w.PublicityClass,
		SecurityReasons:     w.SecurityReasons,
	}
	for _, s := range w.Handlings {
		stepCreated, err := parseTime(s.Created)
		if err != nil {
			return domain.Case{}, newError(KindDecode, op, err)
		}
		c.Handlings = append(c.Handlings, domain.Handling{
			Sequence:        s.Sequence,
			SectorName:      s.SectorName,
			SectorID:        s.SectorID,
			Status:          s.Status,
			Created:         stepCreated,
			NearestDeadline: s.NearestDeadline,
			Links:           s.Links,
		})
	}
	for _, r := range w.Records {
		rec, err := r.toDomain(op, w.CaseID)
		if err != nil {
			return domain.Case{}, err
		}
		c.Records = append(c.Records, rec)
	}
	return c, nil
}

func (w wireRecord) toDomain(op, caseID string) (domain.CaseRecord, error) {
	if w.NativeID == "" {
		return domain.CaseRecord{}, errorf(KindDecode, op, "record of case %s missing NativeId", caseID)
	}
	if w.VersionSeriesID == "" {
		return domain.CaseRecord{}, errorf(KindDecode, op, "record %s missing VersionSeriesId", w.NativeID)
	}
	if w.Title == "" {
		return domain.CaseRecord{}, errorf(KindDecode, op, "record %s missing Title", w.NativeID)
	}
	issued, err := parseTime(w.Issued)
	if err != nil {
		return domain.CaseRecord{}, newError(KindDecode, op, err)
	}
	return domain.CaseRecord{
		Title:            w.Title,
		AttachmentNumber: w.AttachmentNumber,
		PublicityClass:   w.PublicityClass,
		SecurityReason:   w.SecurityReason,
		VersionSeriesID:  w.VersionSeriesID,
		NativeID:         w.NativeID,
		Type:             w.Type,
		FileURI:          w.FileURI,
		Language:         w.Language,
		PersonalData:     w.PersonalData,
		Issued:           issued,
	}, nil
}

func (w wireOrgInfo) toDomain(op string) (domain.OrganizationInfo, error) {
	if w.ID == "" {
		return domain.OrganizationInfo{}, errorf(KindDecode, op, "organization missing ID")
	}
	if w.Name == "" {
		return domain.OrganizationInfo{}, errorf(KindDecode, op, "organization %s missing Name", w.ID)
	}
	formed, err := parseTime(w.Formed)
	if err != nil {
		return domain.OrganizationInfo{}, newError(KindDecode, op, err)
	}
	dissolved, err := parseTime(w.Dissolved)
	if err != nil {
		return domain.OrganizationInfo{}, newError(KindDecode, op, err)
	}
	return domain.OrganizationInfo{
		ID:        w.ID,
		Name:      w.Name,
		Existing:  w.Existing != "0" && w.Existing != "false",
		Type:      w.Type,
		Formed:    formed,
		Dissolved: dissolved,
	}, nil
}

func (w wireOrganization) toDomain(op string) (domain.Organization, error) {
	info, err := w.Organization.toDomain(op)
	if err != nil {
		return domain.Organization{}, err
	}
	org := domain.Organization{Info: info, Sectors: w.Sectors}
	// More than one parent means the remote data is corrupt. Never
	// return a partially built organization for it.
	if len(w.Parents) > 1 {
		return domain.Organization{}, errorf(KindDataIntegrity, op,
			"organization %s has %d parents", info.ID, len(w.Parents))
	}
	if len(w.Parents) == 1 {
		parent, err := w.Parents[0].toDomain(op)
		if err != nil {
			return domain.Organization{}, err
		}
		org.Parent = &parent
	}
	for _, c := range w.Children {
		child, err := c.toDomain(op)
		if err != nil {
			return domain.Organization{}, err
		}
		org.Children = append(org.Children, child)
	}
	return org, nil
}

func (w wireTrustee) toDomain(op string) (domain.Trustee, error) {
	if w.ID == "" {
		return domain.Trustee{}, errorf(KindDecode, op, "trustee missing ID")
	}
	if w.Name == "" {
		return domain.Trustee{}, errorf(KindDecode, op, "trustee %s missing Name", w.ID)
	}
	t := domain.Trustee{
		ID:           w.ID,
		Name:         w.Name,
		CouncilGroup: w.CouncilGroup,
	}
	for _, d := range w.Initiatives {
		t.Initiatives = append(t.Initiatives, domain.TrusteeDocument{Title: d.Title, URI: d.URI})
	}
	for _, d := range w.Resolutions {
		t.Resolutions = append(t.Resolutions, domain.TrusteeDocument{Title: d.Title, URI: d.URI})
	}
	for _, c := range w.Chairmanships {
		t.Chairmanships = append(t.Chairmanships, domain.Chairmanship{
			Position:         c.Position,
			OrganizationID:   c.OrganizationID,
			OrganizationName: c.OrganizationName,
		})
	}
	return t, nil
}
