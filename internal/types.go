package internal

type IdentifierKind string

const (
	KindFEI     IdentifierKind = "FEI_NUMBER"
	KindDUNS    IdentifierKind = "DUNS_NUMBER"
	KindName    IdentifierKind = "NAME_MATCH"
	KindLabeler IdentifierKind = "LABELER"
)

type Outcome string

const (
	OutcomeFound    Outcome = "found"
	OutcomeNotFound Outcome = "not_found"
	OutcomeError    Outcome = "error"
)

type LookupStatus string

const (
	LookupOK            LookupStatus = "ok"
	LookupNoProduct     LookupStatus = "no_product_found"
	LookupInvalidNDC    LookupStatus = "invalid_ndc"
	LookupInternalError LookupStatus = "internal_error"
)

const (
	RowStatusOK          = "ok"
	RowStatusNoEstablish = "no_establishments_found"
)

type OperationScope string

const (
	ScopeNDCSpecific OperationScope = "ndc_specific"
	ScopeGeneral     OperationScope = "general"
	ScopeInferred    OperationScope = "inferred"
	ScopeNone        OperationScope = "none"
)

const (
	ProvenanceFEI         = "spreadsheet_fei_database"
	ProvenanceDUNS        = "spreadsheet_duns_database"
	ProvenanceNameMatch   = "spreadsheet_name_match"
	ProvenanceLabelerDUNS = "labeler_duns_database"
)

// FacilityRecord is one registry row resolved to a facility. It is never
// mutated after the index is built.
type FacilityRecord struct {
	Key               string
	Kind              IdentifierKind
	OriginalID        string
	EstablishmentName string
	FirmName          string
	AddressLine1      string
	City              string
	StateProvince     string
	Country           string
	PostalCode        string
	Latitude          *float64
	Longitude         *float64
	Provenance        string
	RowNumber         int
}

type ProductRecord struct {
	NDC         string
	ProductName string
	LabelerName string
	SPLID       *string
	Source      string
}

type IdentifierMatch struct {
	Number            string
	Kind              IdentifierKind
	Location          string
	Context           string
	EstablishmentName string
}

type EstablishmentResult struct {
	Facility   FacilityRecord
	FEINumber  *string
	DUNSNumber *string
	Operations []string
	Quotes     []string
	Scope      OperationScope
	MatchKind  IdentifierKind
	Location   string
	Context    string
	Confidence float64
}

// Row is the flat per-establishment output. Field order matches RowColumns.
type Row struct {
	NDC               string   `json:"ndc"`
	ProductName       string   `json:"product_name"`
	LabelerName       string   `json:"labeler_name"`
	SPLID             *string  `json:"spl_id"`
	FEINumber         *string  `json:"fei_number"`
	DUNSNumber        *string  `json:"duns_number"`
	EstablishmentName *string  `json:"establishment_name"`
	FirmName          *string  `json:"firm_name"`
	AddressLine1      *string  `json:"address_line_1"`
	City              *string  `json:"city"`
	State             *string  `json:"state"`
	Country           *string  `json:"country"`
	PostalCode        string   `json:"postal_code"`
	Latitude          *float64 `json:"latitude"`
	Longitude         *float64 `json:"longitude"`
	Operations        *string  `json:"spl_operations"`
	Quotes            *string  `json:"spl_quotes"`
	SearchMethod      string   `json:"search_method"`
	XMLLocation       *string  `json:"xml_location"`
	MatchType         *string  `json:"match_type"`
	XMLContext        string   `json:"xml_context"`
	Confidence        float64  `json:"confidence"`
	Status            string   `json:"status"`
}

var RowColumns = []string{
	"ndc", "product_name", "labeler_name", "spl_id",
	"fei_number", "duns_number", "establishment_name", "firm_name",
	"address_line_1", "city", "state", "country", "postal_code", "latitude", "longitude",
	"spl_operations", "spl_quotes", "search_method", "xml_location", "match_type", "xml_context",
	"confidence", "status",
}

// LookupRow is the audit record of one lookup.
type LookupRow struct {
	ID             int
	TraceID        string
	RequestID      *int
	NDC            string
	NormalizedNDC  string
	Status         LookupStatus
	ProductName    *string
	LabelerName    *string
	SPLID          *string
	ProductSource  *string
	ExtractMode    *string
	Establishments int
	DurationMs     int64
	Error          *string
	CreatedAt      string
}

// RequestRow is one NDC list file picked up from the inbox.
type RequestRow struct {
	ID         int
	Name       string
	Hash       string
	Status     string
	RawRef     string
	ReceivedAt string
}

const (
	RequestStored    = "stored"
	RequestProcessed = "processed"
	RequestExported  = "exported"
	RequestFailed    = "failed"
)
