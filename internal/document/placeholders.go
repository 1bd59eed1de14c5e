package document

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"moledger/internal/models"
)

// Scalar tokens.
const (
	TokenMOID     = "MO_ID"
	TokenDate     = "DATE"
	TokenPartNo   = "PART_NO"
	TokenOrderNo  = "ORDER_NO"
	TokenName     = "NAME"
	TokenCustPart = "CUST_PART"
	TokenMaterial = "MATERIAL"
	TokenQty      = "QTY"
	TokenModel    = "MODEL"
)

// Asset tokens.
const (
	TokenImage  = "IMAGE"
	TokenQRCode = "QR_CODE"
)

// DateLayout is how the DATE token renders the creation date.
const DateLayout = "2006/01/02"

// NoImageMarker replaces the IMAGE token when no picture can be inserted.
const NoImageMarker = "(no image)"

var scalarTokens = []string{
	TokenMOID, TokenDate, TokenPartNo, TokenOrderNo, TokenName,
	TokenCustPart, TokenMaterial, TokenQty, TokenModel,
}

var (
	imageToken = regexp.MustCompile(`\{\{\s*IMAGE\s*\}\}`)
	qrToken    = regexp.MustCompile(`\{\{\s*QR_CODE\s*\}\}`)
)

// Wrap returns the literal form of a token as it appears in a template.
func Wrap(token string) string {
	return "{{" + token + "}}"
}

// StationToken returns STATION_i for a 1-based slot.
func StationToken(i int) string { return fmt.Sprintf("STATION_%d", i) }

// TimeToken returns TIME_i for a 1-based slot.
func TimeToken(i int) string { return fmt.Sprintf("TIME_%d", i) }

// Placeholders lists every token a template exposes: 9 scalar, 18 station
// and 2 asset tokens.
func Placeholders() []string {
	out := append([]string{}, scalarTokens...)
	for i := 1; i <= models.MaxStations; i++ {
		out = append(out, StationToken(i), TimeToken(i))
	}
	return append(out, TokenImage, TokenQRCode)
}

// StandardTimeText renders a station's standard time.
func StandardTimeText(seconds float64) string {
	return "standard time " + strconv.FormatFloat(seconds, 'f', -1, 64) + " sec"
}

// TextValues resolves every text token of rec. All 9 station slots are
// present; slots at or after the first empty station name are blank. Dates
// are rendered in loc when it is non-nil.
func TextValues(rec models.MORecord, loc *time.Location) map[string]string {
	created := rec.CreatedAt
	if loc != nil {
		created = created.In(loc)
	}
	values := map[string]string{
		TokenMOID:     rec.MOID,
		TokenDate:     created.Format(DateLayout),
		TokenPartNo:   rec.PartNo,
		TokenOrderNo:  rec.OrderNo,
		TokenName:     rec.Name,
		TokenCustPart: rec.CustomerPartNo,
		TokenMaterial: rec.Material,
		TokenQty:      strconv.Itoa(rec.Quantity),
		TokenModel:    rec.Model,
	}
	ended := false
	for i, st := range rec.Stations {
		slot := i + 1
		if ended || st.Name == "" {
			ended = true
			values[StationToken(slot)] = ""
			values[TimeToken(slot)] = ""
			continue
		}
		values[StationToken(slot)] = st.Name
		values[TimeToken(slot)] = StandardTimeText(st.StandardTimeSeconds)
	}
	return values
}

func newReplacer(values map[string]string) *strings.Replacer {
	pairs := make([]string, 0, len(values)*2)
	for token, v := range values {
		pairs = append(pairs, Wrap(token), v)
	}
	return strings.NewReplacer(pairs...)
}
