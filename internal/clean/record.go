package clean

import "time"

// Domain bounds. Values outside these are stored as null, not clamped.
const (
	// MaxValeurFonciere caps monetary values at 100 million euros.
	MaxValeurFonciere = 100_000_000

	// MaxSurface caps surface fields at 10 million m².
	MaxSurface = 10_000_000
)

// Record is the normalized, schema-conformant representation of one DVF row.
// Nullable numerics are pointers; empty strings stand for absent text fields
// and are stored as NULL by the sink.
type Record struct {
	IDMutation        string
	DateMutation      *time.Time
	NumeroDisposition string
	IDParcelle        string
	Lot1Numero        string

	ValeurFonciere          *float64
	SurfaceReelleBati       *float64
	SurfaceTerrain          *float64
	Lot1SurfaceCarrez       *float64
	NombrePiecesPrincipales *float64
	Longitude               *float64
	Latitude                *float64

	TypeLocal     string
	CodeTypeLocal string

	CodePostal      string
	CodeCommune     string
	NomCommune      string
	CodeDepartement string
	AdresseNomVoie  string
	AdresseNumero   string

	// ImportYear tags the record with its source partition.
	ImportYear int
}

// Reason explains why a record was refused admission.
type Reason string

const (
	// ReasonAdmitted marks an eligible record.
	ReasonAdmitted Reason = ""

	// ReasonMissingID marks a record without a mutation identifier.
	ReasonMissingID Reason = "missing_id_mutation"

	// ReasonMissingDate marks a record whose date was absent or unparseable.
	ReasonMissingDate Reason = "missing_date_mutation"
)

// Eligibility reports whether the record may enter a batch. A record needs a
// non-empty mutation id and a parsed date; every other field may be null.
func (r *Record) Eligibility() Reason {
	if r.IDMutation == "" {
		return ReasonMissingID
	}
	if r.DateMutation == nil {
		return ReasonMissingDate
	}
	return ReasonAdmitted
}
