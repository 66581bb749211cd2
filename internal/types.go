package internal

import "time"

type RowSource string

const (
	SourceXLSX      RowSource = "xlsx"
	SourceHTMLTable RowSource = "email_html_table"
	SourcePDF       RowSource = "pdf"
)

type ErrorKind string

const (
	ErrRecipeNotFound       ErrorKind = "RECIPE_NOT_FOUND"
	ErrRecipeNoPrice        ErrorKind = "RECIPE_NO_PRICE"
	ErrMaterialNotFound     ErrorKind = "MATERIAL_NOT_FOUND"
	ErrDuplicateRemision    ErrorKind = "DUPLICATE_REMISION"
	ErrInvalidDate          ErrorKind = "INVALID_DATE"
	ErrInvalidVolume        ErrorKind = "INVALID_VOLUME"
	ErrMissingRequiredField ErrorKind = "MISSING_REQUIRED_FIELD"
	ErrDataType             ErrorKind = "DATA_TYPE_ERROR"
)

type ValidationError struct {
	RowNumber   int       `json:"rowNumber"`
	Kind        ErrorKind `json:"kind"`
	FieldName   string    `json:"fieldName"`
	FieldValue  string    `json:"fieldValue"`
	Message     string    `json:"message"`
	Recoverable bool      `json:"recoverable"`
}

type RowStatus string

const (
	StatusPending RowStatus = "pending"
	StatusValid   RowStatus = "valid"
	StatusWarning RowStatus = "warning"
	StatusError   RowStatus = "error"
)

// RawRow is one delivery record extracted from an Arkik report. It is
// immutable input: validation copies it into a ValidatedRow and never
// writes back.
type RawRow struct {
	RowNumber           int
	Source              RowSource
	OrderRef            string
	RemisionNumber      string
	DispatchStatus      string
	Volume              float64
	ClientCode          string
	ClientName          string
	RFC                 string
	SiteName            string
	DeliveryPoint       string
	CommercialCode      string
	ProductCode         string // Arkik long description, primary lookup key
	ProductCodeFallback string // technical product code
	InternalComments    string
	ExternalComments    string
	Elements            string
	Truck               string
	Plates              string
	Driver              string
	Pumpable            bool
	Date                time.Time
	LoadTime            time.Time

	MaterialsTheoretical map[string]float64
	MaterialsActual      map[string]float64
	MaterialsRework      map[string]float64
	MaterialsManual      map[string]float64
}

// Recipe is read-only reference data scoped to a plant.
type Recipe struct {
	ID            string
	PlantID       string
	LongCode      string // Arkik long description code
	ShortCode     string // internal recipe code
	AlternateCode string // Arkik short code
}

type PriceSource string

const (
	SourcePrice PriceSource = "price"
	SourceQuote PriceSource = "quote"
)

// PriceCandidate unifies an active product price and an approved quote
// line into one shape, the load-time merge the selector scores against.
type PriceCandidate struct {
	RecipeID          string
	ClientID          string
	SiteName          string
	Amount            float64
	Source            PriceSource
	EffectiveDate     time.Time
	ClientDisplayName string
	ClientCode        string
	PriceID           string
	QuoteID           string
}

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// PricingMatch is the scored outcome of selecting one candidate for a row.
type PricingMatch struct {
	Candidate    PriceCandidate
	ClientScore  float64
	SiteScore    float64
	SourceScore  float64
	RecencyScore float64
	TotalScore   float64
	Confidence   Confidence
}

// ValidatedRow is the validation output for one RawRow.
type ValidatedRow struct {
	RawRow
	RecipeID          string
	ClientID          string
	UnitPrice         float64
	PriceSource       PriceSource
	SuggestedClientID string
	SuggestedSiteName string
	Confidence        Confidence
	ClientScore       float64
	SiteScore         float64
	TotalScore        float64
	Status            RowStatus
	Errors            []ValidationError
}

type PricingMatchStats struct {
	Direct         int `json:"direct"`
	ClientFiltered int `json:"clientFiltered"`
	SiteFiltered   int `json:"siteFiltered"`
	Fallback       int `json:"fallback"`
	FromPrices     int `json:"fromPrices"`
	FromQuotes     int `json:"fromQuotes"`
}

type FuzzyMatchStats struct {
	Recipes int `json:"recipes"`
	Clients int `json:"clients"`
	Sites   int `json:"sites"`
}

// BatchStats is observability output only; nothing branches on it.
type BatchStats struct {
	ProcessedRows  int               `json:"processedRows"`
	CacheHits      int               `json:"cacheHits"`
	CacheMisses    int               `json:"cacheMisses"`
	PricingMatches PricingMatchStats `json:"pricingMatches"`
	FuzzyMatches   FuzzyMatchStats   `json:"fuzzyMatches"`
}

type BatchResult struct {
	Validated []ValidatedRow
	Errors    []ValidationError
	Stats     BatchStats
}

// ExistingRecordRef identifies a stored remision matching an incoming
// row's number, plus flags for which dependent records exist.
type ExistingRecordRef struct {
	RemisionID         string
	RemisionNumber     string
	OrderID            string
	OrderNumber        string
	RecipeID           string
	Date               time.Time
	Volume             float64
	HasMaterials       bool
	HasStatusDecisions bool
	HasReassignments   bool
	HasWasteMaterials  bool
}

type DuplicateStrategy string

const (
	StrategySkip                DuplicateStrategy = "skip"
	StrategyUpdateMaterialsOnly DuplicateStrategy = "update_materials_only"
	StrategyUpdateAll           DuplicateStrategy = "update_all"
	StrategyMerge               DuplicateStrategy = "merge"
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// DuplicateInfo is the classifier's analysis of one existing record
// against the incoming row that collides with it.
type DuplicateInfo struct {
	RemisionNumber    string
	Existing          ExistingRecordRef
	VolumeChanged     bool
	DateChanged       bool
	MaterialsMissing  bool
	RiskLevel         RiskLevel
	SuggestedStrategy DuplicateStrategy
	Notes             []string
}

// DuplicateDecision is advisory output; the caller may override it.
type DuplicateDecision struct {
	RemisionNumber string
	Strategy       DuplicateStrategy
	Notes          string
}

type DuplicateSummary struct {
	LowRisk             int `json:"lowRisk"`
	MediumRisk          int `json:"mediumRisk"`
	HighRisk            int `json:"highRisk"`
	MaterialsOnlyUpdate int `json:"materialsOnlyUpdates"`
	FullUpdates         int `json:"fullUpdates"`
	Merged              int `json:"merged"`
	Skipped             int `json:"skipped"`
}

// DuplicatePartition is what ApplyDecisions hands back for persistence.
type DuplicatePartition struct {
	ToInsert []ValidatedRow
	ToSkip   []ValidatedRow
	ToUpdate []DuplicateUpdate
	Summary  DuplicateSummary
}

type DuplicateUpdate struct {
	Row                ValidatedRow
	ExistingRemisionID string
	Strategy           DuplicateStrategy
	PreserveExisting   bool
}

type EmailRow struct {
	ID         int
	Provider   string
	MessageID  string
	Subject    string
	Sender     string
	ReceivedAt string
	Hash       string
	Status     string
	RawRef     string
}

type FetchedMailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}
