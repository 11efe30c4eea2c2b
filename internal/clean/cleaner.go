package clean

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// numericPattern extracts the leading signed decimal from a cleaned-up value.
var numericPattern = regexp.MustCompile(`[-+]?\d*\.?\d+`)

// digitsPattern matches postal codes written as integers or as floats with a
// zero fraction, the way spreadsheet round-trips tend to mangle them.
var digitsPattern = regexp.MustCompile(`^\d+\.?\d*$`)

// dateLayout is the date format of the DVF exports.
const dateLayout = "2006-01-02"

// columns holds the header positions of the fields the schema knows about,
// resolved once per partition. -1 means the column is absent from this
// export.
type columns struct {
	idMutation        int
	dateMutation      int
	numeroDisposition int
	idParcelle        int
	lot1Numero        int

	valeurFonciere          int
	surfaceReelleBati       int
	surfaceTerrain          int
	lot1SurfaceCarrez       int
	nombrePiecesPrincipales int
	longitude               int
	latitude                int

	typeLocal     int
	codeTypeLocal int

	codePostal      int
	codeCommune     int
	nomCommune      int
	codeDepartement int
	adresseNomVoie  int
	adresseNumero   int
}

// Cleaner converts raw rows of one partition into typed records.
type Cleaner struct {
	cols columns
	year int
}

// NewCleaner binds the header of one export to the record schema. Columns
// the schema does not know about are ignored; known columns missing from the
// header yield null fields on every row.
func NewCleaner(header []string, year int) *Cleaner {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.ToLower(strings.TrimSpace(name))] = i
	}

	at := func(name string) int {
		if i, ok := idx[name]; ok {
			return i
		}
		return -1
	}

	return &Cleaner{
		year: year,
		cols: columns{
			idMutation:              at("id_mutation"),
			dateMutation:            at("date_mutation"),
			numeroDisposition:       at("numero_disposition"),
			idParcelle:              at("id_parcelle"),
			lot1Numero:              at("lot1_numero"),
			valeurFonciere:          at("valeur_fonciere"),
			surfaceReelleBati:       at("surface_reelle_bati"),
			surfaceTerrain:          at("surface_terrain"),
			lot1SurfaceCarrez:       at("lot1_surface_carrez"),
			nombrePiecesPrincipales: at("nombre_pieces_principales"),
			longitude:               at("longitude"),
			latitude:                at("latitude"),
			typeLocal:               at("type_local"),
			codeTypeLocal:           at("code_type_local"),
			codePostal:              at("code_postal"),
			codeCommune:             at("code_commune"),
			nomCommune:              at("nom_commune"),
			codeDepartement:         at("code_departement"),
			adresseNomVoie:          at("adresse_nom_voie"),
			adresseNumero:           at("adresse_numero"),
		},
	}
}

// Clean converts the fields of one raw row into a Record. It never fails;
// values it cannot interpret become null fields. The input slice is not
// retained.
func (c *Cleaner) Clean(fields []string) Record {
	text := func(col int) string {
		if col < 0 || col >= len(fields) {
			return ""
		}
		s := strings.TrimSpace(fields[col])
		if isNullMarker(s) {
			return ""
		}
		return s
	}

	rec := Record{
		IDMutation:        text(c.cols.idMutation),
		NumeroDisposition: text(c.cols.numeroDisposition),
		IDParcelle:        text(c.cols.idParcelle),
		Lot1Numero:        text(c.cols.lot1Numero),
		TypeLocal:         text(c.cols.typeLocal),
		CodeTypeLocal:     text(c.cols.codeTypeLocal),
		CodeCommune:       text(c.cols.codeCommune),
		NomCommune:        text(c.cols.nomCommune),
		CodeDepartement:   text(c.cols.codeDepartement),
		AdresseNomVoie:    text(c.cols.adresseNomVoie),
		AdresseNumero:     text(c.cols.adresseNumero),
		ImportYear:        c.year,
	}

	if d := parseDate(text(c.cols.dateMutation)); d != nil {
		rec.DateMutation = d
	}

	rec.ValeurFonciere = bounded(coerceNumeric(text(c.cols.valeurFonciere)), 0, MaxValeurFonciere)
	rec.SurfaceReelleBati = bounded(coerceNumeric(text(c.cols.surfaceReelleBati)), 0, MaxSurface)
	rec.SurfaceTerrain = bounded(coerceNumeric(text(c.cols.surfaceTerrain)), 0, MaxSurface)
	rec.Lot1SurfaceCarrez = bounded(coerceNumeric(text(c.cols.lot1SurfaceCarrez)), 0, MaxSurface)
	rec.NombrePiecesPrincipales = coerceNumeric(text(c.cols.nombrePiecesPrincipales))
	rec.Longitude = coerceNumeric(text(c.cols.longitude))
	rec.Latitude = coerceNumeric(text(c.cols.latitude))

	rec.CodePostal = normalizePostal(text(c.cols.codePostal), rec.CodeDepartement, rec.CodeCommune)

	return rec
}

// isNullMarker reports whether s is one of the null spellings seen in the
// exports.
func isNullMarker(s string) bool {
	switch s {
	case "", "NaN", "nan", "NULL":
		return true
	}
	return false
}

// parseDate returns nil on failure; the admission policy decides whether a
// null date rejects the row.
func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil
	}
	return &d
}

// coerceNumeric strips separator variants, extracts the leading signed
// decimal pattern and parses it. Anything else becomes null, never an error.
func coerceNumeric(s string) *float64 {
	if s == "" {
		return nil
	}
	s = strings.ReplaceAll(s, ",", ".")
	m := numericPattern.FindString(s)
	if m == "" {
		return nil
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}

// bounded nulls values outside [min, max] instead of clamping them.
func bounded(v *float64, min, max float64) *float64 {
	if v == nil {
		return nil
	}
	if *v < min || *v > max {
		return nil
	}
	return v
}

// normalizePostal yields a 5-digit postal code. A numeric postal code is
// zero-padded; an absent or non-numeric one is synthesized from the
// department code, or from the first two characters of the commune code.
// Returns "" when no source is usable.
func normalizePostal(postal, departement, commune string) string {
	if postal != "" && digitsPattern.MatchString(postal) {
		if f, err := strconv.ParseFloat(postal, 64); err == nil {
			return zeroPad(strconv.Itoa(int(f)), 5)
		}
	}
	if departement != "" && isDigits(departement) {
		return zeroPad(departement, 2) + "000"
	}
	if len(commune) >= 2 {
		return zeroPad(commune[:2], 2) + "000"
	}
	return ""
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func zeroPad(s string, width int) string {
	for len(s) < width {
		s = "0" + s
	}
	return s
}
